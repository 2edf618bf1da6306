package graph

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kunquat-go/synth/errs"
)

// Level identifies which tier of the path grammar a node lives at.
type Level int

const (
	LevelRoot Level = iota
	LevelInstrument
	LevelInstrumentInput // the "Iin" node inside an instrument
	LevelGenerator       // gen_XX inside an instrument (terminal, source-only)
	LevelInnerEffect     // eff_XX inside an instrument
	LevelEffect          // top-level eff_XX
	LevelDSP             // dsp_XX inside an effect (terminal)
)

// Direction of a port.
type Direction int

const (
	In Direction = iota
	Out
)

var hex2 = regexp.MustCompile(`^[0-9a-f]{2}$`)

// ParsedPath is a canonicalised connection endpoint: the node key (the
// path with its port suffix stripped) plus the port's direction and
// index, and which grammar Level the node belongs to. Spec §8 calls this
// canonicalisation out explicitly: "the validated path's port suffix is
// stripped and the remaining prefix is a unique node key."
type ParsedPath struct {
	NodeKey string
	Level   Level
	Dir     Direction
	Port    int
}

// ParsePath validates and canonicalises one endpoint of a connection
// ("ins_01/gen_00/out_00", "in_00", "ins_01/Iin/in_00", ...), per the
// grammar in spec §6.
//
//	root           := port                             (port must be in_*)
//	instrument     := "ins_" hex2 "/" port              (port must be out_*)
//	instrument-in  := "ins_" hex2 "/Iin/" port          (port must be in_*)
//	generator      := "ins_" hex2 "/gen_" hex2 "/" port (port must be out_*)
//	inner-effect   := "ins_" hex2 "/eff_" hex2 "/" port (port may be in_* or out_*)
//	top-effect     := "eff_" hex2 "/" port              (port may be in_* or out_*)
//	dsp            := "eff_" hex2 "/dsp_" hex2 "/" port (port may be in_* or out_*)
//
// limits bounds the hex2 index of each kind of node against the engine's
// configured maximums.
func ParsePath(path string, limits Limits) (ParsedPath, error) {
	segs := strings.Split(path, "/")
	if len(segs) == 0 {
		return ParsedPath{}, errs.New(errs.Format, "empty connection path")
	}

	portSeg := segs[len(segs)-1]
	dir, portIdx, err := parsePort(portSeg)
	if err != nil {
		return ParsedPath{}, err
	}

	prefix := segs[:len(segs)-1]
	nodeKey := strings.Join(prefix, "/")

	switch {
	case len(prefix) == 0:
		if dir != In {
			return ParsedPath{}, errs.New(errs.Format, "invalid path %q: root only accepts in_* ports", path)
		}
		return ParsedPath{NodeKey: "", Level: LevelRoot, Dir: dir, Port: portIdx}, nil

	case len(prefix) >= 1 && strings.HasPrefix(prefix[0], "ins_"):
		idx, err := parseIndex(prefix[0], "ins_", limits.MaxInstruments, path)
		if err != nil {
			return ParsedPath{}, err
		}
		_ = idx
		switch len(prefix) {
		case 1:
			if dir != Out {
				return ParsedPath{}, errs.New(errs.Format, "invalid path %q: instrument node only accepts out_* ports", path)
			}
			return ParsedPath{NodeKey: nodeKey, Level: LevelInstrument, Dir: dir, Port: portIdx}, nil
		case 2:
			switch {
			case prefix[1] == "Iin":
				if dir != In {
					return ParsedPath{}, errs.New(errs.Format, "invalid path %q: Iin only accepts in_* ports", path)
				}
				return ParsedPath{NodeKey: nodeKey, Level: LevelInstrumentInput, Dir: dir, Port: portIdx}, nil
			case strings.HasPrefix(prefix[1], "gen_"):
				if _, err := parseIndex(prefix[1], "gen_", limits.MaxGenerators, path); err != nil {
					return ParsedPath{}, err
				}
				if dir != Out {
					return ParsedPath{}, errs.New(errs.Format, "invalid path %q: generator only accepts out_* ports", path)
				}
				return ParsedPath{NodeKey: nodeKey, Level: LevelGenerator, Dir: dir, Port: portIdx}, nil
			case strings.HasPrefix(prefix[1], "eff_"):
				if _, err := parseIndex(prefix[1], "eff_", limits.MaxEffects, path); err != nil {
					return ParsedPath{}, err
				}
				return ParsedPath{NodeKey: nodeKey, Level: LevelInnerEffect, Dir: dir, Port: portIdx}, nil
			}
		}
		return ParsedPath{}, errs.New(errs.Format, "invalid instrument-level path %q", path)

	case len(prefix) >= 1 && strings.HasPrefix(prefix[0], "eff_"):
		if _, err := parseIndex(prefix[0], "eff_", limits.MaxEffects, path); err != nil {
			return ParsedPath{}, err
		}
		switch len(prefix) {
		case 1:
			return ParsedPath{NodeKey: nodeKey, Level: LevelEffect, Dir: dir, Port: portIdx}, nil
		case 2:
			if strings.HasPrefix(prefix[1], "dsp_") {
				if _, err := parseIndex(prefix[1], "dsp_", limits.MaxDSPs, path); err != nil {
					return ParsedPath{}, err
				}
				return ParsedPath{NodeKey: nodeKey, Level: LevelDSP, Dir: dir, Port: portIdx}, nil
			}
		}
		return ParsedPath{}, errs.New(errs.Format, "invalid effect-level path %q", path)
	}

	return ParsedPath{}, errs.New(errs.Format, "invalid path %q: unrecognised node prefix", path)
}

func parsePort(seg string) (Direction, int, error) {
	switch {
	case strings.HasPrefix(seg, "in_"):
		idx, err := parseHex2(strings.TrimPrefix(seg, "in_"), seg)
		return In, idx, err
	case strings.HasPrefix(seg, "out_"):
		idx, err := parseHex2(strings.TrimPrefix(seg, "out_"), seg)
		return Out, idx, err
	default:
		return 0, 0, errs.New(errs.Format, "invalid port segment %q: must be in_XX or out_XX", seg)
	}
}

func parseHex2(s, ctx string) (int, error) {
	if !hex2.MatchString(s) {
		return 0, errs.New(errs.Format, "invalid port index in %q: must be two lowercase hex digits", ctx)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, errs.New(errs.Format, "invalid port index in %q: %v", ctx, err)
	}
	return int(v), nil
}

func parseIndex(seg, prefix string, max int, fullPath string) (int, error) {
	digits := strings.TrimPrefix(seg, prefix)
	if !hex2.MatchString(digits) {
		return 0, errs.New(errs.Format, "invalid index in %q: %q must be two lowercase hex digits", fullPath, seg)
	}
	v, err := strconv.ParseUint(digits, 16, 16)
	if err != nil {
		return 0, errs.New(errs.Format, "invalid index in %q: %v", fullPath, err)
	}
	if int(v) >= max {
		return 0, errs.New(errs.Format, "index %s in %q exceeds configured maximum %d", seg, fullPath, max)
	}
	return int(v), nil
}

// Limits bounds the indices accepted by the path grammar, configured at
// engine construction.
type Limits struct {
	MaxInstruments int
	MaxEffects     int
	MaxGenerators  int
	MaxDSPs        int
}

// DefaultLimits matches the two-hex-digit index space (0x00-0x3f by
// convention, leaving headroom below the hard 0xff ceiling).
var DefaultLimits = Limits{MaxInstruments: 0x40, MaxEffects: 0x40, MaxGenerators: 0x40, MaxDSPs: 0x40}

func (l Level) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelInstrument:
		return "instrument"
	case LevelInstrumentInput:
		return "instrument-input"
	case LevelGenerator:
		return "generator"
	case LevelInnerEffect:
		return "inner-effect"
	case LevelEffect:
		return "effect"
	case LevelDSP:
		return "dsp"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}
