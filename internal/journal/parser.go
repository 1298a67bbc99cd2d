package journal

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/zouppen/systemdb/internal/domain"
)

// ErrMalformed is returned for lines that are not a usable journal record
var ErrMalformed = errors.New("malformed journal record")

// Parser decodes `journalctl -o json` lines into records
type Parser struct{}

// NewParser creates a new journal parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse converts one line of journal JSON export into a Record. The line must
// be a JSON object carrying a string __CURSOR and an integer
// __REALTIME_TIMESTAMP; anything else is ErrMalformed.
func (p *Parser) Parse(line []byte) (*domain.Record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !gjson.ValidBytes(line) {
		return nil, fmt.Errorf("%w: not JSON", ErrMalformed)
	}

	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	fields := make(map[string]string)
	doc.ForEach(func(key, value gjson.Result) bool {
		// Binary journal fields arrive as byte arrays; keep their raw JSON.
		fields[key.String()] = value.String()
		return true
	})

	cursor := doc.Get(gjsonKey(domain.FieldCursor))
	if cursor.Type != gjson.String || cursor.Str == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, domain.FieldCursor)
	}

	rt := doc.Get(gjsonKey(domain.FieldRealtime))
	if rt.Type != gjson.String && rt.Type != gjson.Number {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformed, domain.FieldRealtime)
	}
	micros, err := strconv.ParseInt(rt.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s %q", ErrMalformed, domain.FieldRealtime, rt.String())
	}

	return &domain.Record{
		Fields:   fields,
		Cursor:   cursor.Str,
		Realtime: micros,
		Millis:   micros / 1000,
	}, nil
}

// gjsonKey escapes gjson path metacharacters so a field name is matched literally
func gjsonKey(field string) string {
	var b bytes.Buffer
	for i := 0; i < len(field); i++ {
		switch c := field[i]; c {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
