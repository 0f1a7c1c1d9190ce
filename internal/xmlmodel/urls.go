package xmlmodel

import "net/url"

// scpdKey joins a UDN and serviceId into the lookup key CollectSCPDURLs
// produces and the loader's SCPDLookup closures consume.
func scpdKey(udn, serviceID string) string {
	return udn + "|" + serviceID
}

// ResolveURLs rewrites every SCPDURL/controlURL/eventSubURL in dev and
// its embedded devices from the (possibly relative) form given in the
// description document into an absolute URL resolved against base —
// the document's LOCATION.
func ResolveURLs(dev *deviceXML, base *url.URL) {
	for i := range dev.ServiceList {
		svc := &dev.ServiceList[i]
		svc.SCPDURL = resolveRef(base, svc.SCPDURL)
		svc.ControlURL = resolveRef(base, svc.ControlURL)
		svc.EventSubURL = resolveRef(base, svc.EventSubURL)
	}
	for i := range dev.IconList {
		dev.IconList[i].URL = resolveRef(base, dev.IconList[i].URL)
	}
	for i := range dev.DeviceList {
		ResolveURLs(&dev.DeviceList[i], base)
	}
}

func resolveRef(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// CollectSCPDURLs walks dev and its embedded devices, returning every
// service's (already-absolute) SCPDURL keyed by UDN+"|"+serviceId, the
// same key ResolveDevice's SCPDLookup callback is invoked with.
func CollectSCPDURLs(dev *deviceXML) map[string]string {
	out := make(map[string]string)
	collectSCPDURLs(dev, out)
	return out
}

func collectSCPDURLs(dev *deviceXML, out map[string]string) {
	for _, svc := range dev.ServiceList {
		out[scpdKey(dev.UDN, svc.ServiceID)] = svc.SCPDURL
	}
	for i := range dev.DeviceList {
		collectSCPDURLs(&dev.DeviceList[i], out)
	}
}
