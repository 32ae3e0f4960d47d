package store

// VN is a visual novel tracked locally. ID is assigned by the remote
// service and is never synthesised on our side.
type VN struct {
	ID    uint64 `json:"id"`
	Title string `json:"title"`
}

// Hook is a text-hook code for one version of a VN. The logical key is
// (VNID, Version); a hook exists only while its VN row exists.
type Hook struct {
	VNID    uint64 `json:"vnId"`
	Version string `json:"version"`
	Code    string `json:"code"`
}

// VNData is the combined read result for a VN and all of its hooks.
type VNData struct {
	VN    VN     `json:"vn"`
	Hooks []Hook `json:"hooks"`
}
