package gena

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
)

// Property is one (name, value) pair out of a GENA <e:propertyset>
// body, spec.md §4.6.
type Property struct {
	Name  string
	Value string
}

// ParsePropertySet decodes a GENA NOTIFY body of the form:
//
//	<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">
//	  <e:property><Volume>42</Volume></e:property>
//	</e:propertyset>
//
// Each <e:property> wraps exactly one child element whose tag name is
// the state variable name and whose text is its new value; that shape
// can't be expressed with static struct tags, so this walks tokens.
func ParsePropertySet(data []byte) ([]Property, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var props []Property
	inProperty := false
	var curName, curValue string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gena: parse propertyset: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "property":
				inProperty = true
				curName, curValue = "", ""
			case inProperty && curName == "":
				curName = t.Name.Local
			}
		case xml.CharData:
			if inProperty && curName != "" {
				curValue += string(t)
			}
		case xml.EndElement:
			switch {
			case t.Name.Local == "property":
				inProperty = false
			case inProperty && t.Name.Local == curName && curName != "":
				props = append(props, Property{Name: curName, Value: curValue})
				curName, curValue = "", ""
			}
		}
	}

	return props, nil
}
