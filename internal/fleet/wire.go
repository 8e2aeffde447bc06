package fleet

import "encoding/base64"

// customerAddBody is the "/customer/add" wire body of spec §4.8.
type customerAddBody struct {
	PollingInterval uint32                    `json:"polling_interval"`
	Ping            bool                      `json:"ping,omitempty"`
	SSLExpiration   bool                      `json:"ssl_expiration,omitempty"`
	Latency         bool                      `json:"latency"`
	MultiRegion     bool                      `json:"multi_region"`
	HostSchemes     map[uint32]hostSchemeWire `json:"host_schemes"`
}

type hostSchemeWire struct {
	URL      string                 `json:"url"`
	Monitors map[uint32]monitorWire `json:"monitors"`
}

type monitorWire struct {
	URI              string   `json:"uri"`
	Method           string   `json:"method,omitempty"`
	ContentCheckMode string   `json:"content_check_mode,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	PostContentType  string   `json:"post_content_type,omitempty"`
	PostUserAgent    string   `json:"post_user_agent,omitempty"`
	PostContent      string   `json:"post_content,omitempty"`
}

// regionChangeBody is the "/region/change" wire body of spec §4.7.
type regionChangeBody struct {
	RegionIndex   int `json:"region_index"`
	NumberRegions int `json:"number_regions"`
}

// customerRemoveBody is the "/customer/remove" wire body.
type customerRemoveBody struct {
	CustomerID uint32 `json:"customer_id"`
}

// customerPauseBody is the "/customer/pause" wire body.
type customerPauseBody struct {
	CustomerID uint32 `json:"customer_id"`
	Pause      bool   `json:"pause"`
}

func encodeKeywordList(list [][]byte) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	for i, kw := range list {
		out[i] = base64.StdEncoding.EncodeToString(kw)
	}
	return out
}

func encodeBase64(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}
