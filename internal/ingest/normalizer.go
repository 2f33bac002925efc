package ingest

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"rayview/internal/core/model"
	"rayview/internal/protocol"
)

// Source describes where a request physically came from. It only
// matters as a fallback identity when the sender declares none.
type Source struct {
	RemoteAddr string
}

// OpKind enumerates the normalized operations a request expands into.
type OpKind int

const (
	// OpCommit records a timeline entry.
	OpCommit OpKind = iota
	// OpTagPrevious backfills color/label onto the preceding entry.
	OpTagPrevious
	// OpAcquireLock registers a named sender lock.
	OpAcquireLock
	// OpReleaseLock drops a named sender lock.
	OpReleaseLock
	// OpClearAll purges the whole timeline.
	OpClearAll
	// OpRemoveLast soft-removes the newest visible entry.
	OpRemoveLast
	// OpHideLast soft-hides the newest visible entry.
	OpHideLast
	// OpSwitchScreen makes a named screen the active one.
	OpSwitchScreen
)

// Op is one normalized operation.
type Op struct {
	Kind       OpKind
	Draft      model.EntryDraft
	Color      string
	Label      string
	LockName   string
	ScreenName string
}

// NormalizedRequest is the decoded request mapped onto the canonical
// model: resolved identity plus an ordered operation list.
type NormalizedRequest struct {
	Origin     string
	Session    string
	ScreenHint string
	Ops        []Op
}

// Normalize maps a decoded request into canonical operations. It is a
// pure function of the request and source; screen resolution and merge
// evaluation happen downstream, in arrival order.
func Normalize(req *protocol.Request, src Source) NormalizedRequest {
	out := NormalizedRequest{
		Origin:     originFingerprint(req, src),
		Session:    sessionID(req, src),
		ScreenHint: screenHint(req),
	}

	var pendingColor, pendingLabel string
	firstDraft := -1

	for i := range req.Payloads {
		payload := &req.Payloads[i]
		switch payload.Kind {
		case protocol.KindColor:
			if value := payload.ContentString("color"); value != "" {
				pendingColor = value
			}
		case protocol.KindLabel:
			if value := payload.ContentString("label"); value != "" {
				pendingLabel = value
			}
		case protocol.KindCreateLock:
			if name := payload.ContentString("name"); name != "" {
				out.Ops = append(out.Ops, Op{Kind: OpAcquireLock, LockName: name})
			}
		case protocol.KindClearAll:
			out.Ops = append(out.Ops, Op{Kind: OpClearAll})
		case protocol.KindRemove:
			if name := payload.ContentString("name"); name != "" {
				out.Ops = append(out.Ops, Op{Kind: OpReleaseLock, LockName: name})
			} else {
				out.Ops = append(out.Ops, Op{Kind: OpRemoveLast})
			}
		case protocol.KindHide:
			out.Ops = append(out.Ops, Op{Kind: OpHideLast})
		case protocol.KindShowApp, protocol.KindHideApp:
			// Window management requests have no meaning here.
		case protocol.KindNewScreen:
			name := payload.ContentString("name")
			out.Ops = append(out.Ops, Op{Kind: OpSwitchScreen, ScreenName: name})
			draft := buildDraft(payload, out)
			draft.Label = strings.TrimSpace(name)
			out.Ops = append(out.Ops, Op{Kind: OpCommit, Draft: draft})
			if firstDraft < 0 {
				firstDraft = len(out.Ops) - 1
			}
		default:
			draft := buildDraft(payload, out)
			out.Ops = append(out.Ops, Op{Kind: OpCommit, Draft: draft})
			if firstDraft < 0 {
				firstDraft = len(out.Ops) - 1
			}
		}
	}

	if pendingColor != "" || pendingLabel != "" {
		if firstDraft >= 0 {
			if pendingColor != "" {
				out.Ops[firstDraft].Draft.ColorTag = pendingColor
			}
			if pendingLabel != "" {
				out.Ops[firstDraft].Draft.Label = pendingLabel
			}
		} else {
			// Color/label with no displayable sibling decorates the
			// previous entry from this origin.
			out.Ops = append(out.Ops, Op{Kind: OpTagPrevious, Color: pendingColor, Label: pendingLabel})
		}
	}

	return out
}

// buildDraft maps one displayable payload to an entry draft.
func buildDraft(payload *protocol.Payload, ctx NormalizedRequest) model.EntryDraft {
	draft := model.EntryDraft{
		Origin:    ctx.Origin,
		SessionID: ctx.Session,
		Kind:      payload.Kind,
		Content: model.Content{
			Raw:     payload.ContentObject(),
			RawType: payload.RawType,
		},
	}

	switch payload.Kind {
	case protocol.KindLog:
		draft.Content.Values = contentValues(payload)
		draft.Content.Clipboard = clipboardData(payload)
	case protocol.KindText:
		if value := payload.ContentString("content"); value != "" {
			draft.Content.Values = []string{value}
		}
	case protocol.KindCustom:
		draft.Label = payload.ContentString("label")
		if value := payload.ContentString("content"); value != "" {
			draft.Content.Values = []string{value}
		}
	case protocol.KindHTML:
		body := payload.ContentString("content")
		if stripped, ok := htmlEncodedJSON(body); ok {
			// SfDump and similar wrappers around JSON: drop the markup
			// and reclassify.
			draft.Kind = protocol.KindJSON
			draft.Content.Values = []string{stripped}
		} else if body != "" {
			draft.Content.Values = []string{stripHTMLTags(body)}
		}
	case protocol.KindJSON:
		switch value := payload.ContentObject()["value"].(type) {
		case string:
			draft.Content.Values = []string{value}
		default:
			if value != nil {
				if text, err := sonic.MarshalString(value); err == nil {
					draft.Content.Values = []string{text}
				}
			}
		}
	case protocol.KindCount:
		draft.Label = payload.ContentString("name")
		if value, ok := payload.ContentInt("value"); ok {
			draft.Count = value
		}
	case protocol.KindException:
		draft.Label = payload.ContentString("class")
		if message := payload.ContentString("message"); message != "" {
			draft.Content.Values = []string{message}
		}
	case protocol.KindTable:
		draft.Label = payload.ContentString("label")
	case protocol.KindMeasure:
		draft.Label = payload.ContentString("name")
	case protocol.KindNotify:
		if value := payload.ContentString("value"); value != "" {
			draft.Content.Values = []string{value}
		}
	case protocol.KindImage:
		if location := payload.ContentString("location"); location != "" {
			draft.Content.Values = []string{location}
		}
	case protocol.KindSize:
		draft.Label = payload.ContentString("size")
	case protocol.KindUnknown:
		// Preserved verbatim in Raw; nothing to extract.
	}

	return draft
}

// contentValues stringifies the values array of a log payload.
func contentValues(payload *protocol.Payload) []string {
	obj := payload.ContentObject()
	if obj == nil {
		return nil
	}
	raw, _ := obj["values"].([]interface{})
	if len(raw) == 0 {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			values = append(values, v)
		case nil:
			values = append(values, "null")
		default:
			if text, err := sonic.MarshalString(v); err == nil {
				values = append(values, text)
			} else {
				values = append(values, fmt.Sprintf("%v", v))
			}
		}
	}
	return values
}

// clipboardData finds clipboard_data in the payload meta list. When a
// sender ships a pretty form, it wins for display.
func clipboardData(payload *protocol.Payload) string {
	obj := payload.ContentObject()
	if obj == nil {
		return ""
	}
	items, _ := obj["meta"].([]interface{})
	for _, item := range items {
		meta, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if text, ok := meta["clipboard_data"].(string); ok {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTMLTags removes markup, leaving the text content.
func stripHTMLTags(text string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(text, ""))
}

// htmlEncodedJSON reports whether an HTML body is a markup wrapper
// around a JSON document, returning the stripped document.
func htmlEncodedJSON(body string) (string, bool) {
	stripped := stripHTMLTags(body)
	if stripped == "" {
		return "", false
	}
	if !strings.HasPrefix(stripped, "{") && !strings.HasPrefix(stripped, "[") {
		return "", false
	}
	var probe interface{}
	if err := sonic.UnmarshalString(stripped, &probe); err != nil {
		return "", false
	}
	return stripped, true
}

// originFingerprint derives the sender identity from declared
// metadata, falling back to the connection address.
func originFingerprint(req *protocol.Request, src Source) string {
	hostname := req.MetaString("hostname")
	if hostname == "" {
		for _, payload := range req.Payloads {
			if payload.Origin != nil && payload.Origin.Hostname != "" {
				hostname = payload.Origin.Hostname
				break
			}
		}
	}
	project := req.MetaString("project_name")

	switch {
	case hostname != "" && project != "":
		return project + "@" + hostname
	case hostname != "":
		return hostname
	case project != "":
		return project
	}

	if host, _, err := net.SplitHostPort(src.RemoteAddr); err == nil && host != "" {
		return host
	}
	if src.RemoteAddr != "" {
		return src.RemoteAddr
	}
	return "unknown"
}

// sessionID groups entries from one client run.
func sessionID(req *protocol.Request, src Source) string {
	for _, key := range []string{"session_id", "session"} {
		if value := req.MetaString(key); value != "" {
			return value
		}
	}
	return originFingerprint(req, src)
}

// screenHint extracts a sender-declared screen name from metadata.
func screenHint(req *protocol.Request) string {
	for _, key := range []string{"screen", "screen_name", "screenName"} {
		if value := strings.TrimSpace(req.MetaString(key)); value != "" {
			return value
		}
	}
	return ""
}
