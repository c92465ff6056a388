package p4switch

import (
	"context"
	"io/ioutil"

	"github.com/golang/protobuf/proto"
	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoadP4Info reads a P4Info in protobuf text format.
func LoadP4Info(path string) (*p4config.P4Info, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read p4info %s", path)
	}
	info := &p4config.P4Info{}
	if err = proto.UnmarshalText(string(content), info); err != nil {
		return nil, errors.Wrap(err, "decode p4info")
	}
	return info, nil
}

// Operator builds entries for one table of a P4Info.
type Operator struct {
	table   *p4config.Table
	tableID uint32
	p4info  *p4config.P4Info
}

func NewOperator(tableName string, p4info *p4config.P4Info) (*Operator, error) {
	for _, item := range p4info.GetTables() {
		if item.GetPreamble().GetName() == tableName {
			return &Operator{
				table:   item,
				tableID: item.GetPreamble().GetId(),
				p4info:  p4info,
			}, nil
		}
	}
	return nil, errors.Errorf("table %q not found in p4info", tableName)
}

// NeedsPriority reports whether entries of the table carry a priority, which
// P4Runtime requires as soon as one field is not an exact match.
func (opt *Operator) NeedsPriority() bool {
	for _, field := range opt.table.GetMatchFields() {
		if field.GetMatchType() != p4config.MatchField_EXACT {
			return true
		}
	}
	return false
}

// EntryBuilder builds a table entry from values keyed by match field name.
// Values are big-endian and exact; fields without a value are don't-care.
func (opt *Operator) EntryBuilder(values map[string]uint64, actionName string, params [][]byte, priority int32) (*p4.TableEntry, error) {
	matchKeys := make([]*MatchKeys, 0, len(opt.table.GetMatchFields()))
	for _, field := range opt.table.GetMatchFields() {
		v, ok := values[field.GetName()]
		if !ok {
			matchKeys = append(matchKeys, &MatchKeys{DontCare: true})
			continue
		}
		matchKeys = append(matchKeys, exactKey(field, EncodeUint(v, field.GetBitwidth())))
	}

	matchFields, err := opt.matchFieldBuilder(matchKeys)
	if err != nil {
		return nil, err
	}
	entryAction, err := opt.entryActionBuilder(actionName, params)
	if err != nil {
		return nil, err
	}
	if !opt.NeedsPriority() {
		priority = 0
	}
	return &p4.TableEntry{
		TableId:  opt.tableID,
		Match:    matchFields,
		Action:   entryAction,
		Priority: priority,
	}, nil
}

// exactKey expresses an exact value in the match kind of field.
func exactKey(field *p4config.MatchField, value []byte) *MatchKeys {
	switch field.GetMatchType() {
	case p4config.MatchField_LPM:
		return &MatchKeys{LpmValue: value, LpmPrefixLen: field.GetBitwidth()}
	case p4config.MatchField_TERNARY:
		return &MatchKeys{TernaryValue: value, TernaryMask: fullMask(field.GetBitwidth())}
	case p4config.MatchField_RANGE:
		return &MatchKeys{RangeLow: value, RangeHigh: value}
	default:
		return &MatchKeys{ExactValue: value}
	}
}

func (opt *Operator) matchFieldBuilder(matchKeys []*MatchKeys) ([]*p4.FieldMatch, error) {
	if len(matchKeys) != len(opt.table.GetMatchFields()) {
		return nil, errors.Errorf("table %s has %d match fields, got %d keys",
			opt.table.GetPreamble().GetName(), len(opt.table.GetMatchFields()), len(matchKeys))
	}
	var fields []*p4.FieldMatch
	for index, field := range opt.table.GetMatchFields() {
		matchKey := matchKeys[index]
		if matchKey.DontCare {
			continue
		}
		switch field.GetMatchType() {
		case p4config.MatchField_EXACT:
			fields = append(fields, &p4.FieldMatch{
				FieldId: field.GetId(),
				FieldMatchType: &p4.FieldMatch_Exact_{
					Exact: &p4.FieldMatch_Exact{Value: matchKey.ExactValue},
				},
			})
		case p4config.MatchField_LPM:
			fields = append(fields, &p4.FieldMatch{
				FieldId: field.GetId(),
				FieldMatchType: &p4.FieldMatch_Lpm{
					Lpm: &p4.FieldMatch_LPM{Value: matchKey.LpmValue, PrefixLen: matchKey.LpmPrefixLen},
				},
			})
		case p4config.MatchField_TERNARY:
			fields = append(fields, &p4.FieldMatch{
				FieldId: field.GetId(),
				FieldMatchType: &p4.FieldMatch_Ternary_{
					Ternary: &p4.FieldMatch_Ternary{Value: matchKey.TernaryValue, Mask: matchKey.TernaryMask},
				},
			})
		case p4config.MatchField_RANGE:
			fields = append(fields, &p4.FieldMatch{
				FieldId: field.GetId(),
				FieldMatchType: &p4.FieldMatch_Range_{
					Range: &p4.FieldMatch_Range{Low: matchKey.RangeLow, High: matchKey.RangeHigh},
				},
			})
		default:
			return nil, errors.Errorf("match field %s: unsupported match type %v", field.GetName(), field.GetMatchType())
		}
	}
	return fields, nil
}

func (opt *Operator) entryActionBuilder(actionName string, params [][]byte) (*p4.TableAction, error) {
	action := FindAction(opt.p4info, actionName)
	if action == nil {
		return nil, errors.Errorf("action %q not found in p4info", actionName)
	}
	if len(params) != len(action.GetParams()) {
		return nil, errors.Errorf("action %s takes %d params, got %d", actionName, len(action.GetParams()), len(params))
	}

	var paramsSlice []*p4.Action_Param
	for index, actionParam := range action.GetParams() {
		paramsSlice = append(paramsSlice, &p4.Action_Param{
			ParamId: actionParam.GetId(),
			Value:   params[index],
		})
	}
	return &p4.TableAction{
		Type: &p4.TableAction_Action{
			Action: &p4.Action{
				ActionId: action.GetPreamble().GetId(),
				Params:   paramsSlice,
			},
		},
	}, nil
}

func FindAction(p4info *p4config.P4Info, name string) *p4config.Action {
	for _, item := range p4info.GetActions() {
		if item.GetPreamble().GetName() == name {
			return item
		}
	}
	return nil
}

// InsertTableEntry writes entry. An entry that is already installed is not
// an error.
func InsertTableEntry(ctx context.Context, client p4.P4RuntimeClient, deviceID uint64, electionID *p4.Uint128, entry *p4.TableEntry) error {
	req := &p4.WriteRequest{
		DeviceId:   deviceID,
		ElectionId: electionID,
		Updates: []*p4.Update{{
			Type: p4.Update_INSERT,
			Entity: &p4.Entity{
				Entity: &p4.Entity_TableEntry{TableEntry: entry},
			},
		}},
	}
	_, err := client.Write(ctx, req)
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return errors.Wrap(err, "insert table entry")
}

// EncodeUint encodes v in the canonical P4Runtime binary form: big-endian,
// no leading zero bytes, at least one byte, never wider than bitwidth.
func EncodeUint(v uint64, bitwidth int32) []byte {
	if bitwidth > 0 && bitwidth < 64 {
		v &= 1<<uint(bitwidth) - 1
	}
	var b []byte
	for v > 0 {
		b = append([]byte{byte(v)}, b...)
		v >>= 8
	}
	if len(b) == 0 {
		b = []byte{0}
	}
	return b
}

// DecodeUint is the inverse of EncodeUint. Inputs wider than eight bytes keep
// their low 64 bits.
func DecodeUint(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func fullMask(bitwidth int32) []byte {
	if bitwidth >= 64 {
		return EncodeUint(^uint64(0), 64)
	}
	return EncodeUint(1<<uint(bitwidth)-1, bitwidth)
}
