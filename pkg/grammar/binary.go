package grammar

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the binary form. The layout is protobuf compatible:
//
//	message Grammar     { repeated Rule rules = 1; }
//	message Rule        { string key = 1; repeated Alternative alternatives = 2; }
//	message Alternative { repeated string values = 1; repeated string coverage = 2; }
const (
	fieldGrammarRules protowire.Number = 1
	fieldRuleKey      protowire.Number = 1
	fieldRuleAlts     protowire.Number = 2
	fieldAltValues    protowire.Number = 1
	fieldAltCoverage  protowire.Number = 2
)

// MarshalBinary encodes g with its coverage. Keys and alternatives are
// sorted, so equal grammars encode to equal bytes.
func MarshalBinary(g *Grammar) []byte {
	var out []byte
	for _, key := range g.SortedKeys() {
		var rule []byte
		rule = protowire.AppendTag(rule, fieldRuleKey, protowire.BytesType)
		rule = protowire.AppendString(rule, string(key))
		for _, p := range sortedAlternatives(g, key) {
			var alt []byte
			for _, s := range p.Values() {
				alt = protowire.AppendTag(alt, fieldAltValues, protowire.BytesType)
				alt = protowire.AppendString(alt, string(s))
			}
			for _, id := range p.Coverage().Sorted() {
				alt = protowire.AppendTag(alt, fieldAltCoverage, protowire.BytesType)
				alt = protowire.AppendString(alt, id)
			}
			rule = protowire.AppendTag(rule, fieldRuleAlts, protowire.BytesType)
			rule = protowire.AppendBytes(rule, alt)
		}
		out = protowire.AppendTag(out, fieldGrammarRules, protowire.BytesType)
		out = protowire.AppendBytes(out, rule)
	}
	return out
}

// UnmarshalBinary decodes a grammar produced by MarshalBinary. Unknown
// fields are skipped.
func UnmarshalBinary(data []byte) (*Grammar, error) {
	g := NewEmpty()
	offset := 0
	for offset < len(data) {
		num, typ, n := protowire.ConsumeTag(data[offset:])
		if n < 0 {
			return nil, newDecodeError("binary", offset, "invalid tag", protowire.ParseError(n))
		}
		offset += n

		if num != fieldGrammarRules || typ != protowire.BytesType {
			m := protowire.ConsumeFieldValue(num, typ, data[offset:])
			if m < 0 {
				return nil, newDecodeError("binary", offset, "invalid field", protowire.ParseError(m))
			}
			offset += m
			continue
		}

		rule, m := protowire.ConsumeBytes(data[offset:])
		if m < 0 {
			return nil, newDecodeError("binary", offset, "invalid rule", protowire.ParseError(m))
		}
		if err := decodeRule(g, rule); err != nil {
			return nil, newDecodeError("binary", offset, "invalid rule", err)
		}
		offset += m
	}
	return g, nil
}

func decodeRule(g *Grammar, data []byte) error {
	var key Symbol
	hasKey := false
	var alts []Production

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldRuleKey && typ == protowire.BytesType:
			s, m := protowire.ConsumeString(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			key, hasKey = Symbol(s), true
			data = data[m:]
		case num == fieldRuleAlts && typ == protowire.BytesType:
			b, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			p, err := decodeAlternativeBinary(b)
			if err != nil {
				return err
			}
			alts = append(alts, p)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
		}
	}

	if !hasKey {
		return fmt.Errorf("rule without key")
	}
	g.Define(key, alts...)
	return nil
}

func decodeAlternativeBinary(data []byte) (Production, error) {
	var values []Symbol
	var coverage []string

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Production{}, protowire.ParseError(n)
		}
		data = data[n:]

		if typ != protowire.BytesType || (num != fieldAltValues && num != fieldAltCoverage) {
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return Production{}, protowire.ParseError(m)
			}
			data = data[m:]
			continue
		}

		s, m := protowire.ConsumeString(data)
		if m < 0 {
			return Production{}, protowire.ParseError(m)
		}
		data = data[m:]
		if num == fieldAltValues {
			values = append(values, Symbol(s))
		} else {
			coverage = append(coverage, s)
		}
	}

	if len(values) == 0 {
		return Production{}, fmt.Errorf("alternative has no symbols")
	}
	return NewProduction(values...).WithCoverage(coverage...), nil
}
