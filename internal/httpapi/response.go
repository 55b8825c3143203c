package httpapi

// timeFormat is the wire format every timestamp field uses in JSON
// responses.
const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"
