package logger

import (
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

const (
	FieldCategory   string = "category"
	FieldDatapathID string = "dpid"
	FieldRemoteAddr string = "remote_addr"
	FieldListenAddr string = "listen_addr"
	FieldDeviceID   string = "device_id"
)

var (
	log      *logrus.Logger
	MainLog  *logrus.Entry
	InitLog  *logrus.Entry
	CfgLog   *logrus.Entry
	CtrlLog  *logrus.Entry
	LearnLog *logrus.Entry
	OfLog    *logrus.Entry
	P4Log    *logrus.Entry
)

func init() {
	log = logrus.New()
	log.SetReportCaller(false)

	log.Formatter = &formatter.Formatter{
		TimestampFormat: time.RFC3339,
		TrimMessages:    true,
		NoFieldsSpace:   true,
		HideKeys:        true,
		FieldsOrder: []string{
			"component",
			FieldCategory,
			FieldListenAddr,
			FieldRemoteAddr,
			FieldDatapathID,
			FieldDeviceID,
		},
	}

	MainLog = log.WithFields(logrus.Fields{"component": "LB", FieldCategory: "Main"})
	InitLog = log.WithFields(logrus.Fields{"component": "LB", FieldCategory: "Init"})
	CfgLog = log.WithFields(logrus.Fields{"component": "LB", FieldCategory: "CFG"})
	CtrlLog = log.WithFields(logrus.Fields{"component": "LB", FieldCategory: "Ctrl"})
	LearnLog = log.WithFields(logrus.Fields{"component": "LB", FieldCategory: "Learn"})
	OfLog = log.WithFields(logrus.Fields{"component": "LB", FieldCategory: "OF"})
	P4Log = log.WithFields(logrus.Fields{"component": "LB", FieldCategory: "P4RT"})
}

func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

func SetReportCaller(enable bool) {
	log.SetReportCaller(enable)
}
