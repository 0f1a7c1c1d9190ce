// Package xmlmodel parses UPnP device descriptions and SCPD documents
// into plain, arena-style structures and performs the single resolution
// pass spec.md §9 calls for: link Arguments to StateVariables and
// Services to Devices by index rather than nested mutable builders, so
// partially-constructed cycles can never be observed.
package xmlmodel

import "encoding/xml"

// deviceDoc is the root <root> document fetched from a Device's LOCATION.
type deviceDoc struct {
	XMLName xml.Name  `xml:"root"`
	Device  deviceXML `xml:"device"`
}

type deviceXML struct {
	DeviceType       string       `xml:"deviceType"`
	FriendlyName     string       `xml:"friendlyName"`
	Manufacturer     string       `xml:"manufacturer"`
	ModelName        string       `xml:"modelName"`
	UDN              string       `xml:"UDN"`
	PresentationURL  string       `xml:"presentationURL"`
	IconList         []iconXML    `xml:"iconList>icon"`
	ServiceList      []serviceXML `xml:"serviceList>service"`
	DeviceList       []deviceXML  `xml:"deviceList>device"`
}

type iconXML struct {
	Mimetype string `xml:"mimetype"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	Depth    int    `xml:"depth"`
	URL      string `xml:"url"`
}

type serviceXML struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

// scpdDoc is the <scpd> document fetched from a Service's SCPDURL.
type scpdDoc struct {
	XMLName        xml.Name           `xml:"scpd"`
	ActionList     []actionXML        `xml:"actionList>action"`
	StateVariables []stateVariableXML `xml:"serviceStateTable>stateVariable"`
}

type actionXML struct {
	Name      string        `xml:"name"`
	Arguments []argumentXML `xml:"argumentList>argument"`
}

type argumentXML struct {
	Name                 string `xml:"name"`
	Direction            string `xml:"direction"`
	RelatedStateVariable string `xml:"relatedStateVariable"`
}

type stateVariableXML struct {
	SendEvents   string   `xml:"sendEvents,attr"`
	Name         string   `xml:"name"`
	DataType     string   `xml:"dataType"`
	DefaultValue string   `xml:"defaultValue"`
	AllowedValue []string `xml:"allowedValueList>allowedValue"`
	MinimumValue string   `xml:"allowedValueRange>minimum"`
	MaximumValue string   `xml:"allowedValueRange>maximum"`
	StepValue    string   `xml:"allowedValueRange>step"`
}

// ParseDevice decodes a root device-description document.
func ParseDevice(data []byte) (*deviceXML, error) {
	var doc deviceDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Stage: "device description", Cause: err}
	}
	return &doc.Device, nil
}

// ParseSCPD decodes a service-control-protocol-description document.
func ParseSCPD(data []byte) (*scpdDoc, error) {
	var doc scpdDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Stage: "SCPD", Cause: err}
	}
	return &doc, nil
}

// ParseError wraps an encoding/xml failure with the document stage that
// produced it, so callers can classify it as InvalidDescription without
// needing to know about the xml package.
type ParseError struct {
	Stage string
	Cause error
}

func (e *ParseError) Error() string {
	return "xmlmodel: parse " + e.Stage + ": " + e.Cause.Error()
}

func (e *ParseError) Unwrap() error { return e.Cause }
