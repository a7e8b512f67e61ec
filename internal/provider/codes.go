package provider

import (
	"bilirelay/internal/errs"
)

type codeInfo struct {
	kind    error
	message string
}

// codeTable maps upstream status codes to error categories. Codes missing
// here surface the upstream's own message.
var codeTable = map[int]codeInfo{
	-400:   {errs.ErrUpstream, "bad request"},
	-403:   {errs.ErrAccessDenied, "access denied"},
	-404:   {errs.ErrVideoNotFound, "video not found"},
	-10403: {errs.ErrRegionRestricted, "video is not available in this region"},
	62002:  {errs.ErrVideoNotFound, "video is hidden"},
	62004:  {errs.ErrUnderReview, "video is under review"},
	62012:  {errs.ErrAccessDenied, "video is visible to its uploader only"},
}

// codeError converts a non-zero upstream code into a typed error.
func codeError(code int, message string) error {
	if info, ok := codeTable[code]; ok {
		return &errs.UpstreamError{Code: code, Message: info.message, Kind: info.kind}
	}
	if message == "" {
		message = "upstream error"
	}
	return &errs.UpstreamError{Code: code, Message: message, Kind: errs.ErrUpstream}
}

// envelope is the common response wrapper of the upstream JSON API.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type viewData struct {
	BVID     string `json:"bvid"`
	AID      int64  `json:"aid"`
	CID      int64  `json:"cid"`
	Title    string `json:"title"`
	Pic      string `json:"pic"`
	Duration int    `json:"duration"`
	Owner    struct {
		MID  int64  `json:"mid"`
		Name string `json:"name"`
	} `json:"owner"`
	Pages []struct {
		CID      int64  `json:"cid"`
		Page     int    `json:"page"`
		Part     string `json:"part"`
		Duration int    `json:"duration"`
	} `json:"pages"`
}

type viewResponse struct {
	envelope
	Data *viewData `json:"data"`
}

type navResponse struct {
	envelope
	Data *struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	} `json:"data"`
}

type playURLResponse struct {
	envelope
	Data *struct {
		Quality       int   `json:"quality"`
		AcceptQuality []int `json:"accept_quality"`
		Durl          []struct {
			URL       string   `json:"url"`
			BackupURL []string `json:"backup_url"`
			Size      int64    `json:"size"`
		} `json:"durl"`
	} `json:"data"`
}
