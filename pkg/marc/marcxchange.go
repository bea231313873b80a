package marc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MarcXchangeNamespace is the default namespace of MarcXchange documents.
const MarcXchangeNamespace = "info:lc/xmlns/marcxchange-v1"

// MarcXchangeCodec encodes records as MarcXchange v1 XML documents.
type MarcXchangeCodec struct{}

type xmlRecord struct {
	XMLName xml.Name
	Leader  string     `xml:"leader"`
	Fields  []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName   xml.Name
	Tag       string        `xml:"tag,attr"`
	Ind1      string        `xml:"ind1,attr,omitempty"`
	Ind2      string        `xml:"ind2,attr,omitempty"`
	Subfields []xmlSubfield `xml:"subfield"`
	Value     string        `xml:",chardata"`
}

type xmlSubfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

type xmlCollection struct {
	XMLName xml.Name
	Records []xmlRecord `xml:"record"`
}

// Name implements Codec.
func (MarcXchangeCodec) Name() string { return CodecMarcXchange }

// Encode implements Codec.
func (MarcXchangeCodec) Encode(rec *Record) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("marcxchange: cannot encode nil record")
	}
	if err := checkText(rec); err != nil {
		return "", err
	}

	doc := xmlRecord{
		XMLName: xml.Name{Space: MarcXchangeNamespace, Local: "record"},
		Leader:  rec.Leader,
		Fields:  make([]xmlField, 0, len(rec.Fields)),
	}
	for _, f := range rec.Fields {
		if f.Control {
			doc.Fields = append(doc.Fields, xmlField{
				XMLName: xml.Name{Local: "controlfield"},
				Tag:     f.Name,
				Value:   f.Value,
			})
			continue
		}
		xf := xmlField{
			XMLName:   xml.Name{Local: "datafield"},
			Tag:       f.Name,
			Subfields: make([]xmlSubfield, 0, len(f.Subfields)),
		}
		xf.Ind1, xf.Ind2 = splitIndicator(f.Indicator)
		for _, sf := range f.Subfields {
			xf.Subfields = append(xf.Subfields, xmlSubfield{Code: sf.Name, Value: sf.Value})
		}
		doc.Fields = append(doc.Fields, xf)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("marcxchange: %w", err)
	}
	return buf.String(), nil
}

// Decode implements Codec. It accepts a single record document or a
// collection, in which case the first record is returned. The declared
// character encoding is ignored since data is already decoded text.
func (MarcXchangeCodec) Decode(data string) (*Record, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, err
	}

	var doc xmlRecord
	switch root {
	case "record":
		if err := newXMLDecoder(data).Decode(&doc); err != nil {
			return nil, fmt.Errorf("marcxchange: %w", err)
		}
	case "collection":
		var coll xmlCollection
		if err := newXMLDecoder(data).Decode(&coll); err != nil {
			return nil, fmt.Errorf("marcxchange: %w", err)
		}
		if len(coll.Records) == 0 {
			return nil, fmt.Errorf("marcxchange: collection contains no records")
		}
		doc = coll.Records[0]
	default:
		return nil, fmt.Errorf("marcxchange: unexpected root element <%s>", root)
	}

	rec := &Record{Leader: doc.Leader, Fields: make([]Field, 0, len(doc.Fields))}
	for _, xf := range doc.Fields {
		switch xf.XMLName.Local {
		case "controlfield":
			rec.Fields = append(rec.Fields, Field{Name: xf.Tag, Control: true, Value: xf.Value})
		case "datafield":
			f := Field{
				Name:      xf.Tag,
				Indicator: xf.Ind1 + xf.Ind2,
			}
			for _, sf := range xf.Subfields {
				f.Subfields = append(f.Subfields, Subfield{Name: sf.Code, Value: sf.Value})
			}
			rec.Fields = append(rec.Fields, f)
		}
	}
	return rec, nil
}

// checkText rejects text xml.Encoder would silently replace with U+FFFD.
func checkText(rec *Record) error {
	if err := xmlText("leader", rec.Leader); err != nil {
		return err
	}
	for i, f := range rec.Fields {
		where := fmt.Sprintf("field %d (%s)", i, f.Name)
		if err := xmlText(where+" tag", f.Name); err != nil {
			return err
		}
		if f.Control {
			if err := xmlText(where+" value", f.Value); err != nil {
				return err
			}
			continue
		}
		if err := xmlText(where+" indicator", f.Indicator); err != nil {
			return err
		}
		for _, sf := range f.Subfields {
			if err := xmlText(where+" subfield code", sf.Name); err != nil {
				return err
			}
			if err := xmlText(where+" subfield "+sf.Name, sf.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func xmlText(where, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("marcxchange: %s is not valid UTF-8", where)
	}
	for _, r := range s {
		if !isXMLChar(r) {
			return fmt.Errorf("marcxchange: %s contains character %U not allowed in XML", where, r)
		}
	}
	return nil
}

// isXMLChar reports whether r is in the XML 1.0 Char production.
func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

func newXMLDecoder(data string) *xml.Decoder {
	dec := xml.NewDecoder(strings.NewReader(data))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec
}

func rootElement(data string) (string, error) {
	dec := newXMLDecoder(data)
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("marcxchange: document has no root element")
			}
			return "", fmt.Errorf("marcxchange: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

func splitIndicator(ind string) (string, string) {
	switch len(ind) {
	case 0:
		return "", ""
	case 1:
		return ind, ""
	default:
		return ind[:1], ind[1:2]
	}
}
