package enums

import (
	"fmt"
	"strings"
)

// UploadChannel names the intake method that produced a set of receipts.
type UploadChannel string

const (
	UploadChannelBarcode     UploadChannel = "BARCODE"
	UploadChannelCSV         UploadChannel = "CSV"
	UploadChannelPhotos      UploadChannel = "PHOTOS"
	UploadChannelFormFilling UploadChannel = "FORM_FILLING"
)

var validUploadChannels = []UploadChannel{
	UploadChannelBarcode,
	UploadChannelCSV,
	UploadChannelPhotos,
	UploadChannelFormFilling,
}

// String implements fmt.Stringer.
func (c UploadChannel) String() string {
	return string(c)
}

// IsValid reports whether the value is a known UploadChannel.
func (c UploadChannel) IsValid() bool {
	for _, candidate := range validUploadChannels {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseUploadChannel converts raw input into an UploadChannel, ignoring case.
func ParseUploadChannel(value string) (UploadChannel, error) {
	normalized := UploadChannel(strings.ToUpper(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid upload channel %q", value)
}
