package protocol

// Kind classifies the payload shapes of the wire contract. Every
// discriminator seen on the wire maps to exactly one Kind; anything
// unrecognized maps to KindUnknown with the raw discriminator kept on
// the payload, so decoding is total over well-formed bodies.
type Kind int

const (
	KindUnknown Kind = iota

	// Displayable payloads: each produces a timeline entry.
	KindLog
	KindText
	KindCustom
	KindBoolean
	KindTable
	KindTrace
	KindException
	KindCaller
	KindCount
	KindMeasure
	KindHTML
	KindImage
	KindJSON
	KindPHPInfo
	KindSeparator
	KindNotify
	KindSize
	KindNewScreen

	// Control payloads: mutate receiver state instead of recording.
	KindCreateLock
	KindClearAll
	KindRemove
	KindHide
	KindColor
	KindLabel
	KindShowApp
	KindHideApp
)

// kindByWire maps wire discriminators to kinds. Several kinds have
// more than one wire spelling across sender versions.
var kindByWire = map[string]Kind{
	"log":            KindLog,
	"text":           KindText,
	"custom":         KindCustom,
	"boolean":        KindBoolean,
	"custom_boolean": KindBoolean,
	"table":          KindTable,
	"trace":          KindTrace,
	"exception":      KindException,
	"caller":         KindCaller,
	"count":          KindCount,
	"counter":        KindCount,
	"measure":        KindMeasure,
	"html":           KindHTML,
	"custom_html":    KindHTML,
	"image":          KindImage,
	"json_string":    KindJSON,
	"decoded_json":   KindJSON,
	"phpinfo":        KindPHPInfo,
	"php_info":       KindPHPInfo,
	"separator":      KindSeparator,
	"notify":         KindNotify,
	"size":           KindSize,
	"new_screen":     KindNewScreen,
	"create_lock":    KindCreateLock,
	"clear_all":      KindClearAll,
	"remove":         KindRemove,
	"hide":           KindHide,
	"color":          KindColor,
	"label":          KindLabel,
	"show_app":       KindShowApp,
	"hide_app":       KindHideApp,
}

var kindLabels = map[Kind]string{
	KindUnknown:    "unknown",
	KindLog:        "log",
	KindText:       "text",
	KindCustom:     "custom",
	KindBoolean:    "bool",
	KindTable:      "table",
	KindTrace:      "trace",
	KindException:  "exception",
	KindCaller:     "caller",
	KindCount:      "count",
	KindMeasure:    "measure",
	KindHTML:       "html",
	KindImage:      "image",
	KindJSON:       "json",
	KindPHPInfo:    "phpinfo",
	KindSeparator:  "separator",
	KindNotify:     "notify",
	KindSize:       "size",
	KindNewScreen:  "screen",
	KindCreateLock: "create_lock",
	KindClearAll:   "clear_all",
	KindRemove:     "remove",
	KindHide:       "hide",
	KindColor:      "color",
	KindLabel:      "label",
	KindShowApp:    "show_app",
	KindHideApp:    "hide_app",
}

// KindFromWire resolves a wire discriminator to its Kind. Unrecognized
// discriminators resolve to KindUnknown, never an error.
func KindFromWire(wire string) Kind {
	if kind, ok := kindByWire[wire]; ok {
		return kind
	}
	return KindUnknown
}

// String returns the display label for the kind
func (k Kind) String() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return "unknown"
}

// Displayable reports whether payloads of this kind produce a timeline
// entry on their own.
func (k Kind) Displayable() bool {
	switch k {
	case KindLog, KindText, KindCustom, KindBoolean, KindTable, KindTrace,
		KindException, KindCaller, KindCount, KindMeasure, KindHTML,
		KindImage, KindJSON, KindPHPInfo, KindSeparator, KindNotify,
		KindSize, KindNewScreen, KindUnknown:
		return true
	}
	return false
}

// MergeTarget reports whether an entry of this kind can absorb a
// follow-up count, trace or caller payload from the same origin.
func (k Kind) MergeTarget() bool {
	return k == KindLog || k == KindText
}

// MergeSource reports whether a payload of this kind folds into a
// preceding log or text entry instead of standing alone.
func (k Kind) MergeSource() bool {
	return k == KindCount || k == KindTrace || k == KindCaller
}
