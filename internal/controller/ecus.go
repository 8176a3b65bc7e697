package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edgefleet/otaupdater/internal/model"
)

type registerECUsRequest struct {
	Serial map[string]ecuTarget `json:"serial"`
}

type ecuTarget struct {
	Target string `json:"target"`
}

// RegisterSecondaryECUs PUTs `<tls.server>/ecus` with
// `{serial: {<ecu-serial>: {target: name}}}` to register the device's
// secondary ECUs against their currently assigned targets (§6,
// [SUPPLEMENTED]: aktualizr-lite registers secondary ECUs this way during
// provisioning; the distilled spec's data model carries secondary ECU
// hardware ids in ProvisionConfig but does not otherwise reference this
// endpoint).
func RegisterSecondaryECUs(ctx context.Context, httpClient *http.Client, tlsServerBase string, assignments map[string]model.Target) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	body := registerECUsRequest{Serial: make(map[string]ecuTarget, len(assignments))}
	for serial, target := range assignments {
		body.Serial[serial] = ecuTarget{Target: target.Name}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal ecu registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, tlsServerBase+"/ecus", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build ecu registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ecu registration request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ecu registration returned status %d", resp.StatusCode)
	}
	return nil
}
