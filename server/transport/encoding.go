package transport

// EncodingParameters describe one encoding (simulcast layer) of a sender.
// The first encoding is the lowest spatial layer.
type EncodingParameters struct {
	RID                   string  `json:"rid,omitempty"`
	Active                bool    `json:"active"`
	MaxBitrate            uint64  `json:"maxBitrate,omitempty"`
	MaxFramerate          float64 `json:"maxFramerate,omitempty"`
	ScaleResolutionDownBy float64 `json:"scaleResolutionDownBy,omitempty"`
}

// CopyEncodings returns a copy of encodings that can be modified without
// affecting the source.
func CopyEncodings(encodings []EncodingParameters) []EncodingParameters {
	if encodings == nil {
		return nil
	}

	ret := make([]EncodingParameters, len(encodings))
	copy(ret, encodings)

	return ret
}

// ActivateLayers returns a copy of encodings where encoding i is active iff
// i <= layer. A layer larger than the number of encodings activates all of
// them.
func ActivateLayers(encodings []EncodingParameters, layer uint8) []EncodingParameters {
	ret := CopyEncodings(encodings)

	for i := range ret {
		ret[i].Active = i <= int(layer)
	}

	return ret
}
