package types

import "fmt"

// Box is one annotated object: a class index and a center-format rectangle
// normalized to the image size. Values outside [0,1] are kept as read.
type Box struct {
	ClassID int     `json:"class_id"`
	CX      float64 `json:"cx"`
	CY      float64 `json:"cy"`
	W       float64 `json:"w"`
	H       float64 `json:"h"`
}

// Valid reports whether the box has a positive extent.
func (b Box) Valid() bool {
	return b.W > 0 && b.H > 0
}

// Bounds returns the normalized left, top, right and bottom edges.
func (b Box) Bounds() (l, t, r, btm float64) {
	return b.CX - b.W/2, b.CY - b.H/2, b.CX + b.W/2, b.CY + b.H/2
}

// Contains reports whether (nx, ny) lies strictly inside the box.
func (b Box) Contains(nx, ny float64) bool {
	l, t, r, btm := b.Bounds()
	return nx > l && nx < r && ny > t && ny < btm
}

func (b Box) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", b.ClassID, b.CX, b.CY, b.W, b.H)
}

// ImageEntry is one dataset image and its annotations.
type ImageEntry struct {
	Path      string
	Width     int
	Height    int
	Boxes     []Box
	LabelPath string
	Dirty     bool
}

// Entry addresses one box of the dataset for the review queue.
type Entry struct {
	ImagePath string
	BoxIndex  int
}

// CommandKind identifies an undoable mutation.
type CommandKind int

const (
	CommandAdd CommandKind = iota
	CommandDelete
	CommandModify
)

func (k CommandKind) String() string {
	switch k {
	case CommandAdd:
		return "ADD"
	case CommandDelete:
		return "DELETE"
	case CommandModify:
		return "MODIFY"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command records a mutation with enough state to invert it.
// Add uses New, Delete uses Old, Modify uses both.
type Command struct {
	Kind      CommandKind
	ImagePath string
	Index     int
	Old       *Box
	New       *Box
}

// Clone returns a deep copy of c.
func (c Command) Clone() Command {
	out := c
	if c.Old != nil {
		b := *c.Old
		out.Old = &b
	}
	if c.New != nil {
		b := *c.New
		out.New = &b
	}
	return out
}

// ViewState maps image pixels to view pixels: view = (image - origin) * zoom.
type ViewState struct {
	OriginX float64
	OriginY float64
	Zoom    float64
}

// PixelRect is an axis-aligned rectangle in pixel space.
type PixelRect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// Width returns the horizontal extent.
func (r PixelRect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent.
func (r PixelRect) Height() float64 { return r.Bottom - r.Top }

// Region is a normalized rectangle with a top-left origin, as returned by
// vision models.
type Region struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToBox converts the region to a center-format box of the given class.
func (r Region) ToBox(classID int) Box {
	return Box{ClassID: classID, CX: r.X + r.W/2, CY: r.Y + r.H/2, W: r.W, H: r.H}
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Region  `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Proposal is a suggested annotation for one image.
type Proposal struct {
	Box        Box
	Label      string
	Confidence float64
	Source     string
}
