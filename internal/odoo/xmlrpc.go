package odoo

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Fault is a remote procedure fault returned by the catalog server.
type Fault struct {
	Code    int
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("odoo: fault %d: %s", f.Code, f.Message)
}

// marshalCall encodes a method call into the XML-RPC wire format.
func marshalCall(method string, params []any) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&b, []byte(method)); err != nil {
		return nil, err
	}
	b.WriteString("</methodName><params>")
	for _, p := range params {
		b.WriteString("<param>")
		if err := writeValue(&b, p); err != nil {
			return nil, err
		}
		b.WriteString("</param>")
	}
	b.WriteString("</params></methodCall>")
	return b.Bytes(), nil
}

func writeValue(b *bytes.Buffer, v any) error {
	b.WriteString("<value>")
	switch t := v.(type) {
	case nil:
		b.WriteString("<boolean>0</boolean>")
	case bool:
		if t {
			b.WriteString("<boolean>1</boolean>")
		} else {
			b.WriteString("<boolean>0</boolean>")
		}
	case int:
		b.WriteString("<int>" + strconv.Itoa(t) + "</int>")
	case int64:
		b.WriteString("<int>" + strconv.FormatInt(t, 10) + "</int>")
	case float64:
		b.WriteString("<double>" + strconv.FormatFloat(t, 'f', -1, 64) + "</double>")
	case string:
		b.WriteString("<string>")
		if err := xml.EscapeText(b, []byte(t)); err != nil {
			return err
		}
		b.WriteString("</string>")
	case []any:
		b.WriteString("<array><data>")
		for _, item := range t {
			if err := writeValue(b, item); err != nil {
				return err
			}
		}
		b.WriteString("</data></array>")
	case map[string]any:
		b.WriteString("<struct>")
		for name, member := range t {
			b.WriteString("<member><name>")
			if err := xml.EscapeText(b, []byte(name)); err != nil {
				return err
			}
			b.WriteString("</name>")
			if err := writeValue(b, member); err != nil {
				return err
			}
			b.WriteString("</member>")
		}
		b.WriteString("</struct>")
	default:
		return fmt.Errorf("odoo: unsupported parameter type %T", v)
	}
	b.WriteString("</value>")
	return nil
}

// unmarshalResponse decodes an XML-RPC methodResponse. A fault response is
// surfaced as *Fault.
func unmarshalResponse(r io.Reader) (any, error) {
	dec := xml.NewDecoder(r)
	var inFault bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("odoo: empty response")
		}
		if err != nil {
			return nil, fmt.Errorf("odoo: decode response: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "fault":
			inFault = true
		case "value":
			val, err := decodeValue(dec, start)
			if err != nil {
				return nil, err
			}
			if inFault {
				return nil, faultFromValue(val)
			}
			return val, nil
		}
	}
}

func faultFromValue(v any) error {
	f := &Fault{}
	if m, ok := v.(map[string]any); ok {
		switch code := m["faultCode"].(type) {
		case int64:
			f.Code = int(code)
		case string:
			f.Code, _ = strconv.Atoi(code)
		}
		if msg, ok := m["faultString"].(string); ok {
			f.Message = strings.TrimSpace(msg)
		}
	}
	return f
}

// decodeValue consumes one <value> element and returns its Go representation:
// string, int64, float64, bool, []any or map[string]any.
func decodeValue(dec *xml.Decoder, start xml.StartElement) (any, error) {
	var (
		result  any
		typed   bool
		rawText strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("odoo: decode value: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inner, err := decodeTypedValue(dec, t)
			if err != nil {
				return nil, err
			}
			result = inner
			typed = true
		case xml.CharData:
			rawText.Write(t)
		case xml.EndElement:
			if t.Name.Local == "value" {
				if !typed {
					// Bare value elements carry string content.
					return rawText.String(), nil
				}
				return result, nil
			}
		}
	}
}

func decodeTypedValue(dec *xml.Decoder, start xml.StartElement) (any, error) {
	switch start.Name.Local {
	case "string":
		return decodeText(dec, start)
	case "int", "i4", "i8":
		text, err := decodeText(dec, start)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("odoo: parse int %q: %w", text, err)
		}
		return n, nil
	case "double":
		text, err := decodeText(dec, start)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("odoo: parse double %q: %w", text, err)
		}
		return f, nil
	case "boolean":
		text, err := decodeText(dec, start)
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(text) == "1", nil
	case "array":
		return decodeArray(dec, start)
	case "struct":
		return decodeStruct(dec, start)
	default:
		// dateTime.iso8601, base64 and friends arrive as text.
		return decodeText(dec, start)
	}
}

func decodeText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("odoo: decode text: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return b.String(), nil
			}
		}
	}
}

func decodeArray(dec *xml.Decoder, start xml.StartElement) ([]any, error) {
	items := make([]any, 0)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("odoo: decode array: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "value" {
				item, err := decodeValue(dec, t)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return items, nil
			}
		}
	}
}

func decodeStruct(dec *xml.Decoder, start xml.StartElement) (map[string]any, error) {
	fields := make(map[string]any)
	var name string
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("odoo: decode struct: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				text, err := decodeText(dec, t)
				if err != nil {
					return nil, err
				}
				name = text
			case "value":
				val, err := decodeValue(dec, t)
				if err != nil {
					return nil, err
				}
				fields[name] = val
			}
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return fields, nil
			}
		}
	}
}
