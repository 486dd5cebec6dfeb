package frame

import (
	"encoding/binary"

	"coredbg/pkg/addr"
	"coredbg/pkg/register"
)

// Call frame instruction opcodes (DW_CFA_*). High two bits of the
// first byte select a primary opcode with an inline operand; the
// low 6 bits select an extended opcode when the high bits are zero.
const (
	cfaAdvanceLoc    = 0x1 << 6
	cfaOffset        = 0x2 << 6
	cfaRestore       = 0x3 << 6

	cfaNop              = 0x00
	cfaSetLoc           = 0x01
	cfaAdvanceLoc1      = 0x02
	cfaAdvanceLoc2      = 0x03
	cfaAdvanceLoc4      = 0x04
	cfaOffsetExtended   = 0x05
	cfaRestoreExtended  = 0x06
	cfaUndefined        = 0x07
	cfaSameValue        = 0x08
	cfaRegister         = 0x09
	cfaRememberState    = 0x0a
	cfaRestoreState     = 0x0b
	cfaDefCfa           = 0x0c
	cfaDefCfaRegister   = 0x0d
	cfaDefCfaOffset     = 0x0e
	cfaDefCfaExpression = 0x0f
	cfaExpression       = 0x10
	cfaOffsetExtendedSf = 0x11
	cfaDefCfaSf         = 0x12
	cfaDefCfaOffsetSf   = 0x13
)

type machine struct {
	cie      *cie
	pc       addr.Addr
	cfaReg   register.Register
	cfaOff   int64
	rules    map[register.Register]RegisterRule
	rows     []Row
	saved    []savedState
}

type savedState struct {
	cfaReg register.Register
	cfaOff int64
	rules  map[register.Register]RegisterRule
}

func newMachine(c *cie, start addr.Addr) *machine {
	return &machine{
		cie:   c,
		pc:    start,
		rules: make(map[register.Register]RegisterRule),
	}
}

func cloneRules(r map[register.Register]RegisterRule) map[register.Register]RegisterRule {
	out := make(map[register.Register]RegisterRule, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (m *machine) emitRow() {
	m.rows = append(m.rows, Row{
		StartAddr: m.pc,
		CFARule:   RegisterRule{Kind: RuleRegister, Reg: m.cfaReg, Offset: m.cfaOff},
		Rules:     cloneRules(m.rules),
	})
}

func (m *machine) run(instrs []byte) {
	i := 0
	for i < len(instrs) {
		b := instrs[i]
		i++
		primary := b & 0xc0
		operand := b & 0x3f

		switch {
		case primary == cfaAdvanceLoc:
			m.pc = m.pc.Add(uint64(operand) * m.cie.codeAlign)
			m.emitRow()

		case primary == cfaOffset:
			reg, err := register.FromDWARF(int(operand))
			if err != nil {
				continue
			}
			v, n := uleb128(instrs[i:])
			i += n
			m.rules[reg] = RegisterRule{Kind: RuleOffset, Offset: int64(v) * m.cie.dataAlign}

		case primary == cfaRestore:
			reg, err := register.FromDWARF(int(operand))
			if err != nil {
				continue
			}
			delete(m.rules, reg)

		case b == cfaNop:
			// no-op

		case b == cfaSetLoc:
			if i+8 > len(instrs) {
				return
			}
			m.pc = addr.Addr(binary.LittleEndian.Uint64(instrs[i : i+8]))
			i += 8
			m.emitRow()

		case b == cfaAdvanceLoc1:
			if i+1 > len(instrs) {
				return
			}
			m.pc = m.pc.Add(uint64(instrs[i]) * m.cie.codeAlign)
			i++
			m.emitRow()

		case b == cfaAdvanceLoc2:
			if i+2 > len(instrs) {
				return
			}
			delta := binary.LittleEndian.Uint16(instrs[i : i+2])
			i += 2
			m.pc = m.pc.Add(uint64(delta) * m.cie.codeAlign)
			m.emitRow()

		case b == cfaAdvanceLoc4:
			if i+4 > len(instrs) {
				return
			}
			delta := binary.LittleEndian.Uint32(instrs[i : i+4])
			i += 4
			m.pc = m.pc.Add(uint64(delta) * m.cie.codeAlign)
			m.emitRow()

		case b == cfaOffsetExtended:
			regNum, n := uleb128(instrs[i:])
			i += n
			off, n2 := uleb128(instrs[i:])
			i += n2
			reg, err := register.FromDWARF(int(regNum))
			if err != nil {
				continue
			}
			m.rules[reg] = RegisterRule{Kind: RuleOffset, Offset: int64(off) * m.cie.dataAlign}

		case b == cfaOffsetExtendedSf:
			regNum, n := uleb128(instrs[i:])
			i += n
			off, n2 := sleb128(instrs[i:])
			i += n2
			reg, err := register.FromDWARF(int(regNum))
			if err != nil {
				continue
			}
			m.rules[reg] = RegisterRule{Kind: RuleOffset, Offset: off * m.cie.dataAlign}

		case b == cfaRestoreExtended:
			regNum, n := uleb128(instrs[i:])
			i += n
			reg, err := register.FromDWARF(int(regNum))
			if err != nil {
				continue
			}
			delete(m.rules, reg)

		case b == cfaUndefined:
			regNum, n := uleb128(instrs[i:])
			i += n
			reg, err := register.FromDWARF(int(regNum))
			if err != nil {
				continue
			}
			m.rules[reg] = RegisterRule{Kind: RuleUndefined}

		case b == cfaSameValue:
			regNum, n := uleb128(instrs[i:])
			i += n
			reg, err := register.FromDWARF(int(regNum))
			if err != nil {
				continue
			}
			m.rules[reg] = RegisterRule{Kind: RuleSameValue}

		case b == cfaRegister:
			regNum, n := uleb128(instrs[i:])
			i += n
			srcNum, n2 := uleb128(instrs[i:])
			i += n2
			reg, err1 := register.FromDWARF(int(regNum))
			src, err2 := register.FromDWARF(int(srcNum))
			if err1 != nil || err2 != nil {
				continue
			}
			m.rules[reg] = RegisterRule{Kind: RuleRegister, Reg: src}

		case b == cfaRememberState:
			m.saved = append(m.saved, savedState{cfaReg: m.cfaReg, cfaOff: m.cfaOff, rules: cloneRules(m.rules)})

		case b == cfaRestoreState:
			if len(m.saved) == 0 {
				continue
			}
			s := m.saved[len(m.saved)-1]
			m.saved = m.saved[:len(m.saved)-1]
			m.cfaReg = s.cfaReg
			m.cfaOff = s.cfaOff
			m.rules = s.rules

		case b == cfaDefCfa:
			regNum, n := uleb128(instrs[i:])
			i += n
			off, n2 := uleb128(instrs[i:])
			i += n2
			if reg, err := register.FromDWARF(int(regNum)); err == nil {
				m.cfaReg = reg
			}
			m.cfaOff = int64(off)

		case b == cfaDefCfaSf:
			regNum, n := uleb128(instrs[i:])
			i += n
			off, n2 := sleb128(instrs[i:])
			i += n2
			if reg, err := register.FromDWARF(int(regNum)); err == nil {
				m.cfaReg = reg
			}
			m.cfaOff = off * m.cie.dataAlign

		case b == cfaDefCfaRegister:
			regNum, n := uleb128(instrs[i:])
			i += n
			if reg, err := register.FromDWARF(int(regNum)); err == nil {
				m.cfaReg = reg
			}

		case b == cfaDefCfaOffset:
			off, n := uleb128(instrs[i:])
			i += n
			m.cfaOff = int64(off)

		case b == cfaDefCfaOffsetSf:
			off, n := sleb128(instrs[i:])
			i += n
			m.cfaOff = off * m.cie.dataAlign

		case b == cfaDefCfaExpression:
			length, n := uleb128(instrs[i:])
			i += n + int(length)

		case b == cfaExpression:
			_, n := uleb128(instrs[i:])
			i += n
			length, n2 := uleb128(instrs[i:])
			i += n2 + int(length)

		default:
			// Unknown/unsupported opcode: nothing more can be safely
			// decoded from this instruction stream.
			return
		}
	}
	m.emitRow()
}
