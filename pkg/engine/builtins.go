package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/stepwise/pkg/project"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms script source before passing it to zygomys.
// It performs three transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: first-step -> first_step
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
//  3. Line comments: ; and ;; become //.
//
// All transformations respect string literal boundaries.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpStep is returned by `step` so scripts can bind steps to variables and
// pass them to `connect` and `guide`.
type sexpStep struct {
	id string
}

func (s *sexpStep) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(step %q)", s.id)
}
func (s *sexpStep) Type() *zygo.RegisteredType { return nil }

// sexpVec2 wraps an authored layout position.
type sexpVec2 struct {
	vec project.Vec2
}

func (v *sexpVec2) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(at %.1f %.1f)", v.vec.X, v.vec.Y)
}
func (v *sexpVec2) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a world-space point.
type sexpVec3 struct {
	vec project.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %.1f %.1f %.1f)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpPose wraps a camera pose.
type sexpPose struct {
	pose project.Pose
}

func (p *sexpPose) SexpString(ps *zygo.PrintState) string {
	e, l := p.pose.Eye, p.pose.LookAt
	return fmt.Sprintf("(camera :eye (vec3 %.1f %.1f %.1f) :look-at (vec3 %.1f %.1f %.1f))", e.X, e.Y, e.Z, l.X, l.Y, l.Z)
}
func (p *sexpPose) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a plain string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok && !strings.HasPrefix(str.S, kwPrefix) {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_cube) and plain strings ("cube").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

func toShape(s zygo.Sexp) (project.ShapeKind, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return "", err
	}
	k := project.ShapeKind(name)
	if !k.IsPrimitive() && k != project.ShapeCustom {
		return "", fmt.Errorf("invalid shape %q, expected cube, sphere, cylinder, cone or custom", name)
	}
	return k, nil
}

func toColor(s zygo.Sexp) (project.Color, error) {
	str, err := toString(s)
	if err != nil {
		return "", err
	}
	c := project.Color(str)
	if !c.Valid() {
		return "", fmt.Errorf("invalid color %q", str)
	}
	return c, nil
}

func toVec2(s zygo.Sexp) (project.Vec2, error) {
	if v, ok := s.(*sexpVec2); ok {
		return v.vec, nil
	}
	return project.Vec2{}, fmt.Errorf("expected (at x y), got %T (%s)", s, s.SexpString(nil))
}

func toVec3(s zygo.Sexp) (project.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return project.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

func toPose(s zygo.Sexp) (project.Pose, error) {
	if p, ok := s.(*sexpPose); ok {
		return p.pose, nil
	}
	return project.Pose{}, fmt.Errorf("expected camera, got %T (%s)", s, s.SexpString(nil))
}

// toStepID accepts a step value or a step id string.
func toStepID(s zygo.Sexp) (string, error) {
	if ref, ok := s.(*sexpStep); ok {
		return ref.id, nil
	}
	id, err := toString(s)
	if err != nil {
		return "", fmt.Errorf("expected step, got %T (%s)", s, s.SexpString(nil))
	}
	return id, nil
}

// stringArg stores the keyword value named key into dst when present.
func stringArg(pa kwArgs, key string, dst *string) error {
	v, ok := pa.kw[key]
	if !ok {
		return nil
	}
	s, err := toString(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = s
	return nil
}

// ---------------------------------------------------------------------------
// Document assembly
// ---------------------------------------------------------------------------

// scriptBuilder accumulates the project a script declares. Generated ids
// are sequential so that evaluation is deterministic.
type scriptBuilder struct {
	p        project.Project
	declared bool
	ids      map[string]bool
	seq      int
}

func newScriptBuilder() *scriptBuilder {
	return &scriptBuilder{
		p:   project.New("Untitled", project.KindBuilder),
		ids: make(map[string]bool),
	}
}

func (b *scriptBuilder) nextID(prefix string) string {
	for {
		b.seq++
		id := fmt.Sprintf("%s-%d", prefix, b.seq)
		if !b.ids[id] {
			return id
		}
	}
}

func (b *scriptBuilder) claim(id string) error {
	if b.ids[id] {
		return fmt.Errorf("%w: %q", project.ErrDuplicateID, id)
	}
	b.ids[id] = true
	return nil
}

func (b *scriptBuilder) hasStep(id string) bool {
	_, ok := b.p.Step(id)
	return ok
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the script builtins into a zygomys environment.
// The builtins populate b during evaluation.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *scriptBuilder) {

	// -----------------------------------------------------------------------
	// (project "name" :kind :upload :asset "https://...")
	// -----------------------------------------------------------------------
	env.AddFunction("project", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if b.declared {
			return zygo.SexpNull, fmt.Errorf("project: declared more than once")
		}
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			n, err := toString(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("project: name: %w", err)
			}
			b.p.Name = n
		}
		if err := stringArg(pa, "name", &b.p.Name); err != nil {
			return zygo.SexpNull, fmt.Errorf("project: %w", err)
		}
		if v, ok := pa.kw["kind"]; ok {
			k, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("project: kind: %w", err)
			}
			switch project.Kind(k) {
			case project.KindBuilder, project.KindUpload:
				b.p.Kind = project.Kind(k)
			default:
				return zygo.SexpNull, fmt.Errorf("project: invalid kind %q, expected builder or upload", k)
			}
		}
		if err := stringArg(pa, "asset", &b.p.Asset); err != nil {
			return zygo.SexpNull, fmt.Errorf("project: %w", err)
		}
		b.declared = true
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (step "Attach frame" :id "frame" :shape :cube :color "#ff8800"
	//       :scale 1.5 :at (at 120 40) :description "..."
	//       :asset "https://..." :focus-mesh "Bolt" :focus-point (vec3 0 1 0)
	//       :camera (camera :eye (vec3 0 5 8) :look-at (vec3 0 0 0)))
	// -----------------------------------------------------------------------
	env.AddFunction("step", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var s project.Step

		if len(pa.positional) > 0 {
			t, err := toString(pa.positional[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("step: title: %w", err)
			}
			s.Title = t
		}
		for key, dst := range map[string]*string{
			"id":          &s.ID,
			"title":       &s.Title,
			"description": &s.Description,
			"asset":       &s.Asset,
			"focus-mesh":  &s.FocusMesh,
		} {
			if err := stringArg(pa, key, dst); err != nil {
				return zygo.SexpNull, fmt.Errorf("step: %w", err)
			}
		}
		if v, ok := pa.kw["shape"]; ok {
			k, err := toShape(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("step: shape: %w", err)
			}
			s.Shape = k
		}
		if v, ok := pa.kw["color"]; ok {
			c, err := toColor(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("step: color: %w", err)
			}
			s.Color = c
		}
		if v, ok := pa.kw["scale"]; ok {
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("step: scale: %w", err)
			}
			if f <= 0 {
				return zygo.SexpNull, fmt.Errorf("step: scale must be positive, got %g", f)
			}
			s.Scale = f
		}
		if v, ok := pa.kw["focus-point"]; ok {
			p, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("step: focus-point: %w", err)
			}
			s.FocusPoint = &p
		}
		if v, ok := pa.kw["camera"]; ok {
			p, err := toPose(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("step: camera: %w", err)
			}
			s.Camera = &p
		}

		if s.ID == "" {
			s.ID = b.nextID("step")
		}
		if err := b.claim(s.ID); err != nil {
			return zygo.SexpNull, fmt.Errorf("step: %w", err)
		}
		s = project.WithDefaults(s)
		b.p.Steps = append(b.p.Steps, s)

		if v, ok := pa.kw["at"]; ok {
			pos, err := toVec2(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("step: at: %w", err)
			}
			b.p.Layout[s.ID] = pos
		}
		return &sexpStep{id: s.ID}, nil
	})

	// -----------------------------------------------------------------------
	// (connect frame wheel :style :neon :description "..." :marker :sphere)
	// -----------------------------------------------------------------------
	env.AddFunction("connect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 2 {
			return zygo.SexpNull, fmt.Errorf("connect requires a source and a target step, got %d", len(pa.positional))
		}
		var c project.Connection
		var err error
		if c.Source, err = toStepID(pa.positional[0]); err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: source: %w", err)
		}
		if c.Target, err = toStepID(pa.positional[1]); err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: target: %w", err)
		}
		for _, id := range []string{c.Source, c.Target} {
			if !b.hasStep(id) {
				return zygo.SexpNull, fmt.Errorf("connect: no step named %q", id)
			}
		}

		if err := stringArg(pa, "id", &c.ID); err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: %w", err)
		}
		if err := stringArg(pa, "description", &c.Description); err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: %w", err)
		}
		if v, ok := pa.kw["style"]; ok {
			st, err := toKeywordString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("connect: style: %w", err)
			}
			c.Style = project.ConnectionStyle(st)
			if !c.Style.Known() {
				return zygo.SexpNull, fmt.Errorf("connect: invalid style %q, expected standard, glass, glow or neon", st)
			}
		}
		if v, ok := pa.kw["marker"]; ok {
			k, err := toShape(v)
			if err != nil || !k.IsPrimitive() {
				return zygo.SexpNull, fmt.Errorf("connect: marker must be a primitive shape")
			}
			c.Marker = k
		}

		if c.ID == "" {
			c.ID = b.nextID("conn")
		}
		if err := b.claim(c.ID); err != nil {
			return zygo.SexpNull, fmt.Errorf("connect: %w", err)
		}
		if c.Style == "" {
			c.Style = project.StyleStandard
		}
		b.p.Connections = append(b.p.Connections, c)
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (guide frame wheel "seat")
	// -----------------------------------------------------------------------
	env.AddFunction("guide", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		for i, a := range args {
			id, err := toStepID(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("guide: entry %d: %w", i, err)
			}
			if !b.hasStep(id) {
				return zygo.SexpNull, fmt.Errorf("guide: no step named %q", id)
			}
			gid := b.nextID("guide")
			b.ids[gid] = true
			b.p.Guide = append(b.p.Guide, project.GuideStep{ID: gid, StepID: id})
		}
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (at 120 40)
	// -----------------------------------------------------------------------
	env.AddFunction("at", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("at requires exactly 2 arguments, got %d", len(args))
		}
		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("at: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("at: y: %w", err)
		}
		return &sexpVec2{vec: project.Vec2{X: x, Y: y}}, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: project.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (camera :eye (vec3 0 5 8) :look-at (vec3 0 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("camera", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var pose project.Pose
		v, ok := pa.kw["eye"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("camera requires :eye")
		}
		eye, err := toVec3(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("camera: eye: %w", err)
		}
		pose.Eye = eye
		if v, ok := pa.kw["look-at"]; ok {
			at, err := toVec3(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("camera: look-at: %w", err)
			}
			pose.LookAt = at
		}
		return &sexpPose{pose: pose}, nil
	})
}
