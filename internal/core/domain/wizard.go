package domain

const (
	StepIdentity    = 1
	StepGeometry    = 2
	StepDescription = 3
	StepMedia       = 4

	FirstStep = StepIdentity
	LastStep  = StepMedia
)

type StepStatus string

const (
	StepCurrent  StepStatus = "current"
	StepComplete StepStatus = "complete"
	StepPending  StepStatus = "pending"
)

type StepTab struct {
	Step   int        `json:"step"`
	Status StepStatus `json:"status"`
}

type GeometryMode string

const (
	GeomModeFile GeometryMode = "file"
	GeomModeDraw GeometryMode = "draw"
)

func ParseGeometryMode(raw string) (GeometryMode, bool) {
	switch GeometryMode(raw) {
	case GeomModeFile, GeomModeDraw:
		return GeometryMode(raw), true
	default:
		return "", false
	}
}

type WizardMode string

const (
	WizardCreate WizardMode = "create"
	WizardEdit   WizardMode = "edit"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

type Notice struct {
	Message string      `json:"message"`
	Level   NoticeLevel `json:"level"`
}
