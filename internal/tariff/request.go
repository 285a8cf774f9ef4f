package tariff

import (
	"net/url"
	"strconv"
)

const (
	// PathVolumes accepts a spreadsheet or manual volumes.
	PathVolumes = "/volumes-info"
	// PathCases evaluates pricing categories for a spreadsheet.
	PathCases = "/clients/cases"

	// FieldPayload is the multipart field carrying the spreadsheet.
	FieldPayload = "payload"
	// SpreadsheetContentType is sent for the uploaded part.
	SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// File is a spreadsheet attached to a request.
type File struct {
	Name string
	Data []byte
}

// Request is one call to the tariff service. Exactly one of File and JSON is set.
type Request struct {
	Path  string
	Query url.Values
	File  *File
	JSON  any
}

// Volumes is the JSON body for manual input.
type Volumes struct {
	KWh     float64  `json:"kwh"`
	KWhMax  *float64 `json:"kwhmax,omitempty"`
	Voltage int      `json:"voltage"`
}

func resolvedQuery() url.Values {
	return url.Values{"return_resolved": []string{"true"}}
}

// VolumesFileRequest uploads a spreadsheet to the volumes endpoint.
func VolumesFileRequest(name string, data []byte) Request {
	return Request{Path: PathVolumes, Query: resolvedQuery(), File: &File{Name: name, Data: data}}
}

// VolumesManualRequest sends manually entered volumes. kwhMax may be nil.
func VolumesManualRequest(kwh float64, kwhMax *float64, voltage int) Request {
	return Request{
		Path:  PathVolumes,
		Query: resolvedQuery(),
		JSON:  Volumes{KWh: kwh, KWhMax: kwhMax, Voltage: voltage},
	}
}

// CasesRequest uploads a spreadsheet together with the connection parameters.
func CasesRequest(name string, data []byte, transmissionIncluded bool, maxPowerKW int, voltageCategory string) Request {
	q := url.Values{}
	q.Set("is_transmission_included", strconv.FormatBool(transmissionIncluded))
	q.Set("max_power_capacity_kwt", strconv.Itoa(maxPowerKW))
	q.Set("voltage_category", voltageCategory)
	return Request{Path: PathCases, Query: q, File: &File{Name: name, Data: data}}
}
