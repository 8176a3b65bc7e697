package model

// TLSMaterial carries optional mTLS client-certificate material for a Remote.
type TLSMaterial struct {
	CACert     string
	ClientCert string
	ClientKey  string
}

// Remote is a fetch origin for rootfs commit data: a symbolic name, a base
// URL, headers to send, and optional client-TLS material.
type Remote struct {
	Name         string
	BaseURL      string
	Headers      map[string]string
	TLS          *TLSMaterial
	IsRemoteSet  bool // whether the tree tool has already been configured with this remote
}
