package graph

import "strings"

// Role says which end of an edge a handle anchors.
type Role uint8

const (
	RoleSource Role = iota
	RoleTarget
)

func (r Role) String() string {
	if r == RoleTarget {
		return "target"
	}
	return "source"
}

// ParseRole maps "source"/"target" to a Role. Anything else is a source.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), "target") {
		return RoleTarget
	}
	return RoleSource
}

// HandlePosition is the anchor point on a node's boundary.
type HandlePosition uint8

const (
	PositionTop HandlePosition = iota
	PositionRight
	PositionBottom
	PositionLeft
	PositionCenter
	// PositionDefault is the sentinel anchor "default".
	PositionDefault
	// PositionCustom carries a name the editor does not know about.
	PositionCustom
)

var positionNames = map[HandlePosition]string{
	PositionTop:     "top",
	PositionRight:   "right",
	PositionBottom:  "bottom",
	PositionLeft:    "left",
	PositionCenter:  "center",
	PositionDefault: "default",
}

const (
	suffixSource = "-source"
	suffixTarget = "-target"
)

// Handle is a tagged connection anchor. Its wire string is derived by String,
// never stored, so a handle cannot carry a suffix that contradicts its role.
type Handle struct {
	Position HandlePosition
	Role     Role
	// Name is set only for PositionCustom.
	Name string
}

// DefaultHandle returns the anchor used when a connection names none:
// right for sources, left for targets.
func DefaultHandle(role Role) Handle {
	if role == RoleTarget {
		return Handle{Position: PositionLeft, Role: RoleTarget}
	}
	return Handle{Position: PositionRight, Role: RoleSource}
}

// ParseHandle interprets a raw anchor id for the given role. Trailing role
// suffixes are discarded and the role argument decides the result, except
// that a custom target name keeps a single "-target" suffix.
func ParseHandle(raw string, role Role) Handle {
	bare := stripRoleSuffixes(raw)
	if bare == "" {
		return DefaultHandle(role)
	}
	lower := strings.ToLower(bare)
	for pos, name := range positionNames {
		if lower == name {
			return Handle{Position: pos, Role: role}
		}
	}
	name := bare
	if role == RoleTarget {
		trimmed := strings.TrimSpace(raw)
		if once := strings.TrimSpace(strings.TrimSuffix(trimmed, suffixTarget)); once == bare && once != trimmed {
			name = bare + suffixTarget
		}
	}
	return Handle{Position: PositionCustom, Role: role, Name: name}
}

// stripRoleSuffixes removes any run of -source/-target suffixes, which
// covers the doubled "-target-source" and "-source-target" forms.
// Surrounding whitespace is trimmed at every step.
func stripRoleSuffixes(s string) string {
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasSuffix(s, suffixSource):
			s = strings.TrimSuffix(s, suffixSource)
		case strings.HasSuffix(s, suffixTarget):
			s = strings.TrimSuffix(s, suffixTarget)
		default:
			return s
		}
	}
}

// Bare returns the position name without any role suffix.
func (h Handle) Bare() string {
	if h.Position == PositionCustom {
		return h.Name
	}
	return positionNames[h.Position]
}

// String returns the canonical wire id. Source handles end in "-source"
// except the "default" sentinel. Target handles end in "-target" only for
// right, bottom and center; top, left and unknown names stay bare.
func (h Handle) String() string {
	bare := h.Bare()
	if h.Role == RoleSource {
		if h.Position == PositionDefault {
			return bare
		}
		return bare + suffixSource
	}
	switch h.Position {
	case PositionRight, PositionBottom, PositionCenter:
		return bare + suffixTarget
	default:
		return bare
	}
}

// NormalizeHandle maps an arbitrary anchor id to its canonical form for role.
// It never panics and NormalizeHandle(NormalizeHandle(x, r), r) equals
// NormalizeHandle(x, r).
func NormalizeHandle(raw string, role Role) string {
	return ParseHandle(raw, role).String()
}
