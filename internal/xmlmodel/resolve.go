package xmlmodel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrUnresolvedStateVariable is returned when an Argument's
// relatedStateVariable cannot be found in its Service's StateVariable
// arena, even after the trim-and-retry-once policy of spec.md §4.3.
var ErrUnresolvedStateVariable = errors.New("xmlmodel: unresolved relatedStateVariable")

// ResolvedDevice is the arena-style, fully-linked result of parsing a
// device description plus its services' SCPD documents. Arguments hold
// an index into their owning Service's StateVariables slice rather than
// a pointer, per spec.md §9's "integer indices into a per-device arena".
type ResolvedDevice struct {
	DeviceType      string
	FriendlyName    string
	Manufacturer    string
	ModelName       string
	UDN             string
	PresentationURL string
	Icons           []ResolvedIcon
	Services        []ResolvedService
	Children        []*ResolvedDevice
}

type ResolvedIcon struct {
	Mimetype string
	Width    int
	Height   int
	Depth    int
	URL      string
}

type ResolvedService struct {
	ServiceType     string
	ServiceID       string
	SCPDURL         string
	ControlURL      string
	EventSubURL     string
	Actions         []ResolvedAction
	StateVariables  []ResolvedStateVariable
}

type ResolvedAction struct {
	Name      string
	Arguments []ResolvedArgument
}

type ResolvedArgument struct {
	Name               string
	Direction          string // "in" or "out"
	StateVariableIndex int    // index into the owning Service's StateVariables
}

type ResolvedStateVariable struct {
	Name         string
	DataType     string
	DefaultValue string
	AllowedValue []string
	Minimum      string
	Maximum      string
	Step         string
	SendEvents   bool
}

// normalizeUDN validates the "uuid:" prefix and RFC 4122 body of a
// device's UDN element and rewrites it to uuid.Parse's canonical
// (lowercase, hyphenated) form, so that USN-derived and
// description-derived UDNs for the same device always compare equal
// regardless of the casing a vendor's firmware happened to emit.
func normalizeUDN(raw string) (string, error) {
	const prefix = "uuid:"
	if !strings.HasPrefix(raw, prefix) {
		return "", fmt.Errorf("UDN %q missing %q prefix", raw, prefix)
	}
	id, err := uuid.Parse(strings.TrimPrefix(raw, prefix))
	if err != nil {
		return "", fmt.Errorf("UDN %q: %w", raw, err)
	}
	return prefix + id.String(), nil
}

// SCPDLookup resolves the parsed SCPD document for a (device UDN,
// serviceId) pair. Returning ok=false means no description was fetched
// for that service — the resulting ResolvedService simply has no
// Actions or StateVariables.
type SCPDLookup func(udn, serviceID string) (*scpdDoc, bool)

// ResolveDevice performs the single resolution pass spec.md §9
// describes: link every Argument to its StateVariable, recursing into
// embedded devices. Invariant (ii) — an Argument whose
// relatedStateVariable is absent even after trimming — fails the whole
// build with ErrUnresolvedStateVariable. warn is called with a message
// whenever resolution succeeds only after trimming a blemished
// relatedStateVariable name (spec.md §8's "resolves to X with a
// warning" boundary behaviour); pass nil to discard it.
func ResolveDevice(dev *deviceXML, lookup SCPDLookup, warn func(string)) (*ResolvedDevice, error) {
	if warn == nil {
		warn = func(string) {}
	}

	udn, err := normalizeUDN(dev.UDN)
	if err != nil {
		return nil, &InvalidDescriptionError{Detail: err.Error(), Cause: err}
	}

	rd := &ResolvedDevice{
		DeviceType:      dev.DeviceType,
		FriendlyName:    dev.FriendlyName,
		Manufacturer:    dev.Manufacturer,
		ModelName:       dev.ModelName,
		UDN:             udn,
		PresentationURL: dev.PresentationURL,
	}

	for _, icon := range dev.IconList {
		rd.Icons = append(rd.Icons, ResolvedIcon{
			Mimetype: icon.Mimetype,
			Width:    icon.Width,
			Height:   icon.Height,
			Depth:    icon.Depth,
			URL:      icon.URL,
		})
	}

	for _, svcXML := range dev.ServiceList {
		svc, err := resolveService(svcXML, dev.UDN, lookup, warn)
		if err != nil {
			return nil, err
		}
		rd.Services = append(rd.Services, svc)
	}

	for i := range dev.DeviceList {
		child, err := ResolveDevice(&dev.DeviceList[i], lookup, warn)
		if err != nil {
			return nil, err
		}
		rd.Children = append(rd.Children, child)
	}

	return rd, nil
}

func resolveService(svcXML serviceXML, udn string, lookup SCPDLookup, warn func(string)) (ResolvedService, error) {
	svc := ResolvedService{
		ServiceType: svcXML.ServiceType,
		ServiceID:   svcXML.ServiceID,
		SCPDURL:     svcXML.SCPDURL,
		ControlURL:  svcXML.ControlURL,
		EventSubURL: svcXML.EventSubURL,
	}

	scpd, ok := lookup(udn, svcXML.ServiceID)
	if !ok {
		return svc, nil
	}

	for _, sv := range scpd.StateVariables {
		svc.StateVariables = append(svc.StateVariables, ResolvedStateVariable{
			Name:         sv.Name,
			DataType:     sv.DataType,
			DefaultValue: sv.DefaultValue,
			AllowedValue: sv.AllowedValue,
			Minimum:      sv.MinimumValue,
			Maximum:      sv.MaximumValue,
			Step:         sv.StepValue,
			SendEvents:   strings.EqualFold(sv.SendEvents, "yes"),
		})
	}

	byName := make(map[string]int, len(svc.StateVariables))
	for i, sv := range svc.StateVariables {
		byName[sv.Name] = i
	}

	for _, actXML := range scpd.ActionList {
		act := ResolvedAction{Name: actXML.Name}
		for _, argXML := range actXML.Arguments {
			idx, ok := byName[argXML.RelatedStateVariable]
			if !ok {
				trimmed := strings.TrimSpace(argXML.RelatedStateVariable)
				idx, ok = byName[trimmed]
				if !ok {
					return ResolvedService{}, &InvalidDescriptionError{
						Detail: "action " + actXML.Name + " argument " + argXML.Name +
							" relatedStateVariable " + strconv.Quote(argXML.RelatedStateVariable) + " not found",
						Cause: ErrUnresolvedStateVariable,
					}
				}
				warn("xmlmodel: invalid description: action " + actXML.Name + " argument " + argXML.Name +
					" relatedStateVariable name has unnecessary blanks: " + strconv.Quote(argXML.RelatedStateVariable))
			}
			act.Arguments = append(act.Arguments, ResolvedArgument{
				Name:               argXML.Name,
				Direction:          argXML.Direction,
				StateVariableIndex: idx,
			})
		}
		svc.Actions = append(svc.Actions, act)
	}

	return svc, nil
}

// ResolveDeviceWithFetcher is ResolveDevice for callers that only have
// raw SCPD bytes on hand (internal/loader, fetching over HTTP) rather
// than an already-parsed document — xmlmodel keeps SCPD parsing to
// itself so SCPDLookup's unexported *scpdDoc never has to cross a
// package boundary.
func ResolveDeviceWithFetcher(dev *deviceXML, fetch func(udn, serviceID string) ([]byte, bool), warn func(string)) (*ResolvedDevice, error) {
	lookup := func(udn, serviceID string) (*scpdDoc, bool) {
		data, ok := fetch(udn, serviceID)
		if !ok {
			return nil, false
		}
		doc, err := ParseSCPD(data)
		if err != nil {
			return nil, false
		}
		return doc, true
	}
	return ResolveDevice(dev, lookup, warn)
}

// InvalidDescriptionError is returned for any structural defect found
// during resolution — a malformed document parses fine as XML but fails
// here, e.g. an unresolved relatedStateVariable.
type InvalidDescriptionError struct {
	Detail string
	Cause  error
}

func (e *InvalidDescriptionError) Error() string {
	return "xmlmodel: invalid description: " + e.Detail
}

func (e *InvalidDescriptionError) Unwrap() error { return e.Cause }
