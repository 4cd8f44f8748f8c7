package domain

// Class tags of the built-in variants.
const (
	ClassVolume          = "Volume"
	ClassLabelMapVolume  = "LabelMapVolume"
	ClassVolumeDisplay   = "VolumeDisplay"
	ClassLinearTransform = "LinearTransform"
	ClassCamera          = "Camera"
	ClassView            = "View"
	ClassHierarchy       = "Hierarchy"
	ClassSceneView       = "SceneView"
)

// Reference roles used by the built-in variants.
const (
	RoleDisplay    = "display"
	RoleTransform  = "transform"
	RoleParent     = "parent"
	RoleAssociated = "associated"
)

// BuiltinClasses returns the factory registrations for the built-in
// variants. Scene views are registered by the scene itself.
func BuiltinClasses() []NodeClass {
	return []NodeClass{
		{Tag: ClassVolume, New: func() Node { return NewVolume() }},
		{Tag: ClassLabelMapVolume, Parent: ClassVolume, New: func() Node { return NewLabelMapVolume() }},
		{Tag: ClassVolumeDisplay, New: func() Node { return NewVolumeDisplay() }},
		{Tag: ClassLinearTransform, New: func() Node { return NewLinearTransform() }},
		{Tag: ClassCamera, New: func() Node { return NewCamera() }},
		{Tag: ClassView, New: func() Node { return NewView() }},
		{Tag: ClassHierarchy, New: func() Node { return NewHierarchy() }},
	}
}

// VolumeContent is the copyable state of an image volume.
type VolumeContent struct {
	Origin   [3]float64
	Spacing  [3]float64
	FileName string
	Window   float64
	Level    float64
}

// Volume is an image volume with optional display and transform references.
type Volume struct {
	NodeBase
	VolumeContent
}

func NewVolume() *Volume {
	v := &Volume{NodeBase: NewNodeBase()}
	v.Spacing = [3]float64{1, 1, 1}
	return v
}

func (v *Volume) ClassTag() string             { return ClassVolume }
func (v *Volume) Content() any                 { return &v.VolumeContent }
func (v *Volume) CopyContent(src Node) error   { return CopyNodeContent(v, src) }
func (v *Volume) DisplayNodeID() string        { return v.NodeReferenceID(RoleDisplay) }
func (v *Volume) SetDisplayNodeID(id string)   { v.SetNodeReferenceID(RoleDisplay, id) }
func (v *Volume) TransformNodeID() string      { return v.NodeReferenceID(RoleTransform) }
func (v *Volume) SetTransformNodeID(id string) { v.SetNodeReferenceID(RoleTransform, id) }

func (v *Volume) WriteAttributes(w *AttributeWriter) { writeVolume(w, &v.VolumeContent) }

func (v *Volume) ReadAttributes(attrs map[string]string) error {
	return readVolume(attrs, &v.VolumeContent)
}

func writeVolume(w *AttributeWriter, c *VolumeContent) {
	w.Floats("origin", c.Origin[:])
	w.Floats("spacing", c.Spacing[:])
	if c.FileName != "" {
		w.String("fileName", c.FileName)
	}
	w.Float("window", c.Window)
	w.Float("level", c.Level)
}

func readVolume(attrs map[string]string, c *VolumeContent) error {
	if err := vectorAttr(attrs, "origin", c.Origin[:]); err != nil {
		return err
	}
	if err := vectorAttr(attrs, "spacing", c.Spacing[:]); err != nil {
		return err
	}
	if v, ok := attrs["fileName"]; ok {
		c.FileName = v
	}
	var err error
	if c.Window, err = floatAttr(attrs, "window", c.Window); err != nil {
		return err
	}
	c.Level, err = floatAttr(attrs, "level", c.Level)
	return err
}

// LabelMapContent extends volume content with label rendering options.
type LabelMapContent struct {
	VolumeContent
	OutlineVisible bool
	ColorTable     string
}

// LabelMapVolume is a segmentation volume. It falls back to the Volume
// default node when none is registered for it.
type LabelMapVolume struct {
	NodeBase
	LabelMapContent
}

func NewLabelMapVolume() *LabelMapVolume {
	v := &LabelMapVolume{NodeBase: NewNodeBase()}
	v.Spacing = [3]float64{1, 1, 1}
	v.ColorTable = "GenericAnatomy"
	return v
}

func (v *LabelMapVolume) ClassTag() string           { return ClassLabelMapVolume }
func (v *LabelMapVolume) Content() any               { return &v.LabelMapContent }
func (v *LabelMapVolume) CopyContent(src Node) error { return CopyNodeContent(v, src) }

func (v *LabelMapVolume) WriteAttributes(w *AttributeWriter) {
	writeVolume(w, &v.VolumeContent)
	w.Bool("outlineVisible", v.OutlineVisible)
	w.String("colorTable", v.ColorTable)
}

func (v *LabelMapVolume) ReadAttributes(attrs map[string]string) error {
	if err := readVolume(attrs, &v.VolumeContent); err != nil {
		return err
	}
	if c, ok := attrs["colorTable"]; ok {
		v.ColorTable = c
	}
	var err error
	v.OutlineVisible, err = boolAttr(attrs, "outlineVisible", v.OutlineVisible)
	return err
}

// VolumeDisplayContent holds display properties for a volume.
type VolumeDisplayContent struct {
	Color   [3]float64
	Opacity float64
	Visible bool
}

type VolumeDisplay struct {
	NodeBase
	VolumeDisplayContent
}

func NewVolumeDisplay() *VolumeDisplay {
	d := &VolumeDisplay{NodeBase: NewNodeBase()}
	d.Color = [3]float64{0.5, 0.5, 0.5}
	d.Opacity = 1
	d.Visible = true
	return d
}

func (d *VolumeDisplay) ClassTag() string           { return ClassVolumeDisplay }
func (d *VolumeDisplay) Content() any               { return &d.VolumeDisplayContent }
func (d *VolumeDisplay) CopyContent(src Node) error { return CopyNodeContent(d, src) }

func (d *VolumeDisplay) WriteAttributes(w *AttributeWriter) {
	w.Floats("color", d.Color[:])
	w.Float("opacity", d.Opacity)
	w.Bool("visibility", d.Visible)
}

func (d *VolumeDisplay) ReadAttributes(attrs map[string]string) error {
	if err := vectorAttr(attrs, "color", d.Color[:]); err != nil {
		return err
	}
	var err error
	if d.Opacity, err = floatAttr(attrs, "opacity", d.Opacity); err != nil {
		return err
	}
	d.Visible, err = boolAttr(attrs, "visibility", d.Visible)
	return err
}

// TransformContent is a row-major 4x4 matrix.
type TransformContent struct {
	Matrix [16]float64
}

// LinearTransform may itself be transformed by a parent transform.
type LinearTransform struct {
	NodeBase
	TransformContent
}

func NewLinearTransform() *LinearTransform {
	t := &LinearTransform{NodeBase: NewNodeBase()}
	t.Matrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	return t
}

func (t *LinearTransform) ClassTag() string               { return ClassLinearTransform }
func (t *LinearTransform) Content() any                   { return &t.TransformContent }
func (t *LinearTransform) CopyContent(src Node) error     { return CopyNodeContent(t, src) }
func (t *LinearTransform) ParentTransformID() string      { return t.NodeReferenceID(RoleTransform) }
func (t *LinearTransform) SetParentTransformID(id string) { t.SetNodeReferenceID(RoleTransform, id) }

func (t *LinearTransform) WriteAttributes(w *AttributeWriter) {
	w.Floats("matrixTransformToParent", t.Matrix[:])
}

func (t *LinearTransform) ReadAttributes(attrs map[string]string) error {
	return vectorAttr(attrs, "matrixTransformToParent", t.Matrix[:])
}

// CameraContent is the copyable camera pose.
type CameraContent struct {
	Position           [3]float64
	FocalPoint         [3]float64
	ViewUp             [3]float64
	ViewAngle          float64
	ParallelProjection bool
}

// Camera binds a pose to a view. ActiveTag names the view currently using
// the camera; it is runtime state and is neither copied nor serialized.
type Camera struct {
	NodeBase
	CameraContent
	ActiveTag string
}

func NewCamera() *Camera {
	c := &Camera{NodeBase: NewNodeBase()}
	c.Position = [3]float64{0, 500, 0}
	c.ViewUp = [3]float64{0, 0, 1}
	c.ViewAngle = 30
	return c
}

func (c *Camera) ClassTag() string           { return ClassCamera }
func (c *Camera) Content() any               { return &c.CameraContent }
func (c *Camera) CopyContent(src Node) error { return CopyNodeContent(c, src) }

func (c *Camera) WriteAttributes(w *AttributeWriter) {
	w.Floats("position", c.Position[:])
	w.Floats("focalPoint", c.FocalPoint[:])
	w.Floats("viewUp", c.ViewUp[:])
	w.Float("viewAngle", c.ViewAngle)
	w.Bool("parallelProjection", c.ParallelProjection)
}

func (c *Camera) ReadAttributes(attrs map[string]string) error {
	for name, dst := range map[string][]float64{
		"position":   c.Position[:],
		"focalPoint": c.FocalPoint[:],
		"viewUp":     c.ViewUp[:],
	} {
		if err := vectorAttr(attrs, name, dst); err != nil {
			return err
		}
	}
	var err error
	if c.ViewAngle, err = floatAttr(attrs, "viewAngle", c.ViewAngle); err != nil {
		return err
	}
	c.ParallelProjection, err = boolAttr(attrs, "parallelProjection", c.ParallelProjection)
	return err
}

// ViewContent describes a layout view.
type ViewContent struct {
	LayoutLabel     string
	BackgroundColor [3]float64
	Visible         bool
}

// View is usually singleton-tagged by its layout name ("Red", "Green").
type View struct {
	NodeBase
	ViewContent
}

func NewView() *View {
	v := &View{NodeBase: NewNodeBase()}
	v.BackgroundColor = [3]float64{0.76, 0.76, 0.9}
	v.Visible = true
	return v
}

func (v *View) ClassTag() string           { return ClassView }
func (v *View) Content() any               { return &v.ViewContent }
func (v *View) CopyContent(src Node) error { return CopyNodeContent(v, src) }

func (v *View) WriteAttributes(w *AttributeWriter) {
	if v.LayoutLabel != "" {
		w.String("layoutLabel", v.LayoutLabel)
	}
	w.Floats("backgroundColor", v.BackgroundColor[:])
	w.Bool("visibility", v.Visible)
}

func (v *View) ReadAttributes(attrs map[string]string) error {
	if l, ok := attrs["layoutLabel"]; ok {
		v.LayoutLabel = l
	}
	if err := vectorAttr(attrs, "backgroundColor", v.BackgroundColor[:]); err != nil {
		return err
	}
	var err error
	v.Visible, err = boolAttr(attrs, "visibility", v.Visible)
	return err
}
