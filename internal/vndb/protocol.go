// Package vndb speaks the VNDB TCP API: 0x04-terminated text frames over
// TLS, one response per request in request order.
package vndb

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Delimiter terminates every frame in both directions.
const Delimiter byte = 0x04

// RefKind is the kind tag of a remote object reference (v1234, c9, ...).
type RefKind byte

const (
	KindVN        RefKind = 'v'
	KindCharacter RefKind = 'c'
	KindRelease   RefKind = 'r'
	KindProducer  RefKind = 'p'
	KindUser      RefKind = 'u'
)

// ParseRefKind maps a reference prefix character to its kind.
func ParseRefKind(ch byte) (RefKind, bool) {
	switch RefKind(ch) {
	case KindVN, KindCharacter, KindRelease, KindProducer, KindUser:
		return RefKind(ch), true
	default:
		return 0, false
	}
}

// Short returns the single-character form used in references and URLs.
func (k RefKind) Short() string {
	return string(byte(k))
}

// Name returns the object type name used in get commands.
func (k RefKind) Name() string {
	switch k {
	case KindVN:
		return "vn"
	case KindCharacter:
		return "character"
	case KindRelease:
		return "release"
	case KindProducer:
		return "producer"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Request is one outbound frame, without the trailing delimiter.
type Request struct {
	text string
}

func (r Request) String() string {
	return r.text
}

// Login is the session handshake; the server answers with a bare ok.
func Login() Request {
	return Request{text: `login {"protocol":1,"client":"roseline","clientver":1.0}`}
}

func escapeTitle(title string) string {
	title = strings.ReplaceAll(title, `\`, `\\`)
	return strings.ReplaceAll(title, `"`, `\"`)
}

// GetByID requests the basic record of any remote object by id.
func GetByID(kind RefKind, id uint64) Request {
	return Request{text: fmt.Sprintf("get %s basic (id = %d)", kind.Name(), id)}
}

// VNByID requests the basic VN record by id.
func VNByID(id uint64) Request {
	return GetByID(KindVN, id)
}

// VNByExactTitle looks a VN up by exact title or original title.
func VNByExactTitle(title string) Request {
	t := escapeTitle(title)
	return Request{text: fmt.Sprintf(`get vn basic (title = "%s" or original = "%s")`, t, t)}
}

// VNByFuzzyTitle searches VNs by partial title or original title.
func VNByFuzzyTitle(title string) Request {
	t := escapeTitle(title)
	return Request{text: fmt.Sprintf(`get vn basic (title ~ "%s" or original ~ "%s")`, t, t)}
}

// ResponseKind discriminates the three frame shapes the server emits.
type ResponseKind int

const (
	ResponseOk ResponseKind = iota
	ResponseResults
	ResponseError
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseOk:
		return "ok"
	case ResponseResults:
		return "results"
	case ResponseError:
		return "error"
	default:
		return "unknown"
	}
}

// Response is one inbound frame. Raw holds the JSON payload for results
// and error frames.
type Response struct {
	Kind ResponseKind
	Raw  json.RawMessage
}

// ParseResponse decodes a frame (without delimiter) into a Response.
func ParseResponse(frame string) (Response, error) {
	frame = strings.TrimSpace(frame)
	name, rest, _ := strings.Cut(frame, " ")

	switch name {
	case "ok":
		return Response{Kind: ResponseOk}, nil
	case "results":
		return Response{Kind: ResponseResults, Raw: json.RawMessage(rest)}, nil
	case "error":
		return Response{Kind: ResponseError, Raw: json.RawMessage(rest)}, nil
	default:
		return Response{}, fmt.Errorf("vndb: unknown response %q", frame)
	}
}

// APIError is the payload of an error frame.
type APIError struct {
	ID  string `json:"id"`
	Msg string `json:"msg"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("vndb: %s: %s", e.ID, e.Msg)
}

// Err decodes an error frame into an APIError.
func (r Response) Err() (APIError, error) {
	var apiErr APIError
	if r.Kind != ResponseError {
		return apiErr, fmt.Errorf("vndb: response is %s, not error", r.Kind)
	}
	if err := json.Unmarshal(r.Raw, &apiErr); err != nil {
		return apiErr, fmt.Errorf("vndb: decode error frame: %w", err)
	}
	return apiErr, nil
}

// Results is the payload of a results frame.
type Results struct {
	Num   int               `json:"num"`
	More  bool              `json:"more"`
	Items []json.RawMessage `json:"items"`
}

// Results decodes a results frame.
func (r Response) Results() (Results, error) {
	var res Results
	if r.Kind != ResponseResults {
		return res, fmt.Errorf("vndb: response is %s, not results", r.Kind)
	}
	if err := json.Unmarshal(r.Raw, &res); err != nil {
		return res, fmt.Errorf("vndb: decode results frame: %w", err)
	}
	return res, nil
}

// VNItem is the basic VN record.
type VNItem struct {
	ID       uint64 `json:"id"`
	Title    string `json:"title"`
	Original string `json:"original"`
}

// VNs decodes the items of a results payload as VN records.
func (res Results) VNs() ([]VNItem, error) {
	vns := make([]VNItem, 0, len(res.Items))
	for _, raw := range res.Items {
		var vn VNItem
		if err := json.Unmarshal(raw, &vn); err != nil {
			return nil, fmt.Errorf("vndb: decode vn item: %w", err)
		}
		vns = append(vns, vn)
	}
	return vns, nil
}

// ObjectItem is the least common denominator of the basic records of the
// non-VN object kinds: an id plus whichever of title/name/username the
// kind carries.
type ObjectItem struct {
	ID       uint64 `json:"id"`
	Title    string `json:"title"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Label returns the first of title, name, username that is set.
func (o ObjectItem) Label() string {
	switch {
	case o.Title != "":
		return o.Title
	case o.Name != "":
		return o.Name
	default:
		return o.Username
	}
}

// Objects decodes the items of a results payload as generic records.
func (res Results) Objects() ([]ObjectItem, error) {
	objs := make([]ObjectItem, 0, len(res.Items))
	for _, raw := range res.Items {
		var obj ObjectItem
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("vndb: decode item: %w", err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
