package connection

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"
)

// Markers of the Samsung 2878 line protocol.
const (
	markerInvalidateAccount = `Update Type="InvalidateAccount"`
	markerAuthOkay          = `Response Type="AuthToken" Status="Okay"`
	markerAuthFail          = `Response Type="AuthToken" Status="Fail"`
	markerStatusUpdate      = `Update Type="Status"`
	markerDeviceStateOkay   = `Response Type="DeviceState" Status="Okay"`
)

// attrPattern matches one attribute token. Devices emit either
// Attr ID=".." Value=".." or Attr ID=".." Type=".." Value="..".
var attrPattern = regexp.MustCompile(`Attr ID="([^"]*)"(?:\s+Type="[^"]*")?\s+Value="([^"]*)"`)

// xmlTest is a DeviceState snapshot as sent by an AR-series unit.
const xmlTest = `<?xml version="1.0" encoding="utf-8" ?><Response Type="DeviceState" Status="Okay"><DeviceState>` +
	`<Device DUID="7825AD103D06" GroupID="AC" ModelID="AC" >` +
	`<Attr ID="AC_FUN_ENABLE" Type="RW" Value="Enable"/>` +
	`<Attr ID="AC_FUN_POWER" Type="RW" Value="On"/>` +
	`<Attr ID="AC_FUN_SUPPORTED" Type="R" Value="0"/>` +
	`<Attr ID="AC_FUN_OPMODE" Type="RW" Value="Cool"/>` +
	`<Attr ID="AC_FUN_TEMPSET" Type="RW" Value="24"/>` +
	`<Attr ID="AC_FUN_COMODE" Type="RW" Value="Off"/>` +
	`<Attr ID="AC_FUN_ERROR" Type="RW" Value="00000000"/>` +
	`<Attr ID="AC_FUN_TEMPNOW" Type="R" Value="29"/>` +
	`<Attr ID="AC_FUN_SLEEP" Type="RW" Value="0"/>` +
	`<Attr ID="AC_FUN_WINDLEVEL" Type="RW" Value="High"/>` +
	`<Attr ID="AC_FUN_DIRECTION" Type="RW" Value="Fixed"/>` +
	`<Attr ID="AC_ADD_AUTOCLEAN" Type="RW" Value="Off"/>` +
	`<Attr ID="AC_ADD_SPI" Type="RW" Value="Off"/>` +
	`<Attr ID="AC_SG_WIFI" Type="W" Value="Connected"/>` +
	`<Attr ID="AC_SG_INTERNET" Type="W" Value="Connected"/>` +
	`<Attr ID="AC_ADD2_USEDWATT" Type="R" Value="0"/>` +
	`<Attr ID="AC_ADD2_VERSION" Type="RW" Value="0"/>` +
	`</Device></DeviceState></Response>`

// parseAttributes extracts every attribute token from a protocol line.
// Parts that do not match are ignored.
func parseAttributes(line string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(line, "><") {
		if m := attrPattern.FindStringSubmatch(part); m != nil {
			attrs[m[1]] = m[2]
		}
	}
	return attrs
}

func authRequest(token string) string {
	return fmt.Sprintf(`<Request Type="AuthToken"><User Token="%s" /></Request>`, escapeAttr(token))
}

func deviceStateRequest(duid string) string {
	return fmt.Sprintf(`<Request Type="DeviceState" DUID="%s"></Request>`, escapeAttr(duid))
}

// attrValue is one attribute assignment of a DeviceControl request.
type attrValue struct {
	ID    string
	Value string
}

func deviceControlRequest(commandID, duid string, attrs []attrValue) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<Request Type="DeviceControl"><Control CommandID="%s" DUID="%s">`,
		escapeAttr(commandID), escapeAttr(duid))
	for _, a := range attrs {
		fmt.Fprintf(&b, `<Attr ID="%s" Value="%s" />`, escapeAttr(a.ID), escapeAttr(a.Value))
	}
	b.WriteString(`</Control></Request>`)
	return b.String()
}

func escapeAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s)) //nolint:errcheck // strings.Builder never fails
	return b.String()
}

// controlAttributes turns a rendered command into attribute assignments.
// Accepted shapes are {"Attr": id, "Value": v} and a list of those.
func controlAttributes(cmd any) ([]attrValue, error) {
	switch v := cmd.(type) {
	case map[string]any:
		a, err := controlAttribute(v)
		if err != nil {
			return nil, err
		}
		return []attrValue{a}, nil
	case []any:
		out := make([]attrValue, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: expected object, got %T", ErrTemplate, item)
			}
			a, err := controlAttribute(m)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected object or list, got %T", ErrTemplate, cmd)
	}
}

func controlAttribute(m map[string]any) (attrValue, error) {
	id := paramString(m, "Attr")
	if id == "" {
		return attrValue{}, fmt.Errorf("%w: missing Attr", ErrTemplate)
	}
	return attrValue{ID: id, Value: paramString(m, "Value")}, nil
}
