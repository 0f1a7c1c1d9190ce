package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
)

// Argument is one parameter of an Action, back-pointing to the
// StateVariable that defines its type per the UPnP service model.
type Argument struct {
	Action        *Action
	Name          string
	Direction     string // "in" or "out"
	StateVariable *StateVariable
}

// Action is one operation exposed by a Service's control URL.
type Action struct {
	Service   *Service
	Name      string
	Arguments []*Argument
}

// InArguments returns this Action's "in" Arguments in declaration order.
func (a *Action) InArguments() []*Argument {
	var out []*Argument
	for _, arg := range a.Arguments {
		if arg.Direction == "in" {
			out = append(out, arg)
		}
	}
	return out
}

// OutArguments returns this Action's "out" Arguments in declaration order.
func (a *Action) OutArguments() []*Argument {
	var out []*Argument
	for _, arg := range a.Arguments {
		if arg.Direction == "out" {
			out = append(out, arg)
		}
	}
	return out
}

// soapEnvelope and soapBody model just enough of a SOAP 1.1 response to
// decode either an action response or a fault, matching the same
// element-by-local-name approach the rest of the library uses for
// description documents.
type soapEnvelope struct {
	Body soapBody `xml:"Body"`
}

type soapBody struct {
	Fault   *soapFault `xml:"Fault"`
	Raw     []byte     `xml:",innerxml"`
}

type soapFault struct {
	ErrorCode        string `xml:"detail>UPnPError>errorCode"`
	ErrorDescription string `xml:"detail>UPnPError>errorDescription"`
}

// Invoke performs the SOAP-over-HTTP action call SPEC_FULL.md §2 adds:
// build the envelope, POST to the Service's controlURL with the
// SOAPACTION header, and decode either the response's out Arguments or
// its Fault.
func (a *Action) Invoke(ctx context.Context, args map[string]string) (map[string]string, error) {
	client := a.Service.cp.httpClient()

	envelope := a.buildEnvelope(args)
	req := Request{
		Method: http.MethodPost,
		URL:    a.Service.ControlURL,
		Header: http.Header{
			"SOAPACTION":   []string{fmt.Sprintf("%q", a.Service.ServiceType+"#"+a.Name)},
			"Content-Type": []string{`text/xml; charset="utf-8"`},
		},
		Body: envelope,
	}

	resp, err := client.Post(ctx, req)
	if err != nil {
		return nil, newError(Network, "action invoke: "+a.Name, err)
	}
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(Network, "action invoke: read response", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return a.parseResponse(body)
	case http.StatusInternalServerError:
		return nil, a.parseFault(body)
	default:
		return nil, newError(Network, fmt.Sprintf("action invoke: unexpected status %d", resp.StatusCode), nil)
	}
}

func (a *Action) buildEnvelope(args map[string]string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?>`)
	buf.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	buf.WriteString(`<s:Body><u:`)
	buf.WriteString(a.Name)
	buf.WriteString(` xmlns:u="`)
	buf.WriteString(a.Service.ServiceType)
	buf.WriteString(`">`)
	for _, in := range a.InArguments() {
		value := args[in.Name]
		fmt.Fprintf(&buf, "<%s>%s</%s>", in.Name, xmlEscape(value), in.Name)
	}
	buf.WriteString(`</u:`)
	buf.WriteString(a.Name)
	buf.WriteString(`></s:Body></s:Envelope>`)
	return buf.Bytes()
}

func (a *Action) parseResponse(body []byte) (map[string]string, error) {
	var env soapEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, newError(Protocol, "action invoke: malformed SOAP response", err)
	}

	var inner struct {
		XMLName xml.Name
		Fields  []struct {
			XMLName xml.Name
			Value   string `xml:",chardata"`
		} `xml:",any"`
	}
	if err := xml.Unmarshal(env.Body.Raw, &inner); err != nil {
		return nil, newError(Protocol, "action invoke: malformed action response", err)
	}

	out := make(map[string]string, len(inner.Fields))
	for _, f := range inner.Fields {
		out[f.XMLName.Local] = f.Value
	}
	return out, nil
}

func (a *Action) parseFault(body []byte) error {
	var env soapEnvelope
	if err := xml.Unmarshal(body, &env); err != nil || env.Body.Fault == nil {
		return newError(Protocol, "action invoke: fault with unparsable body", err)
	}
	fault := env.Body.Fault
	return newError(Protocol, fmt.Sprintf("action invoke: fault %s: %s", fault.ErrorCode, fault.ErrorDescription), nil)
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
