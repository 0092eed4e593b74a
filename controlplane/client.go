package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/projecteru2/virtmon/types"
	"github.com/projecteru2/virtmon/utils"
)

// compile-time interface check.
var _ Connection = (*Client)(nil)

// Client speaks the machine control API over a Unix socket. One client is
// bound to exactly one machine; the socket path is the machine's API
// endpoint.
type Client struct {
	hc   *http.Client
	desc describeResponse
}

// describeResponse is the static machine description served at
// machine.describe. Fetched once at construction; capability and host
// facts do not change over a connection's lifetime.
type describeResponse struct {
	Name        string          `json:"name"`
	UUID        string          `json:"uuid"`
	DetailFlags int             `json:"detail_flags"`
	Host        types.HostFacts `json:"host"`
}

// Dial connects to a machine control socket and reads its description.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	hc := utils.NewSocketHTTPClient(socketPath)
	body, err := utils.DoWithRetry(ctx, func() ([]byte, error) {
		return utils.DoAPI(ctx, hc, http.MethodGet, apiURL("machine.describe"), nil, http.StatusOK)
	})
	if err != nil {
		return nil, fmt.Errorf("describe machine at %s: %w", socketPath, err)
	}
	var desc describeResponse
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("decode machine.describe: %w", err)
	}
	// Older control planes omit the UUID; derive a stable one from the
	// socket path so handle identity survives re-dials.
	if desc.UUID == "" {
		desc.UUID = utils.HandleUUID(socketPath)
	}
	return &Client{hc: hc, desc: desc}, nil
}

func (c *Client) Name() string { return c.desc.Name }
func (c *Client) UUID() string { return c.desc.UUID }

func (c *Client) SupportedDetailFlags() DetailFlag {
	return DetailFlag(c.desc.DetailFlags)
}

func (c *Client) Host() types.HostFacts { return c.desc.Host }

// MachineInfo reads the live state snapshot.
func (c *Client) MachineInfo(ctx context.Context) (types.MachineInfo, error) {
	var info types.MachineInfo
	body, err := utils.DoWithRetry(ctx, func() ([]byte, error) {
		return utils.DoAPI(ctx, c.hc, http.MethodGet, apiURL("machine.info"), nil, http.StatusOK)
	})
	if err != nil {
		return info, fmt.Errorf("query machine info: %w", err)
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return info, fmt.Errorf("decode machine.info: %w", err)
	}
	return info, nil
}

// FetchConfig returns the configuration document at the requested detail.
func (c *Client) FetchConfig(ctx context.Context, flags DetailFlag) (string, error) {
	u := apiURL("machine.config") + "?flags=" + fmt.Sprint(int(flags))
	body, err := utils.DoWithRetry(ctx, func() ([]byte, error) {
		return utils.DoAPI(ctx, c.hc, http.MethodGet, u, nil, http.StatusOK)
	})
	if err != nil {
		return "", mapUnsupported(fmt.Errorf("fetch config (flags=%d): %w", flags, err))
	}
	return string(body), nil
}

// SubmitPersistentConfig replaces the persistent definition wholesale.
// Failures are propagated unmodified so a caller can retry with the same
// validated state.
func (c *Client) SubmitPersistentConfig(ctx context.Context, xml string) error {
	_, err := utils.DoAPI(ctx, c.hc, http.MethodPut, apiURL("machine.redefine"),
		[]byte(xml), http.StatusNoContent)
	if err != nil {
		return fmt.Errorf("submit persistent config: %w", err)
	}
	return nil
}

// AttachDeviceFragment hot-attaches a single device to the live instance.
func (c *Client) AttachDeviceFragment(ctx context.Context, fragment string) error {
	_, err := utils.DoAPI(ctx, c.hc, http.MethodPut, apiURL("machine.attach-device"),
		[]byte(fragment), http.StatusNoContent)
	if err != nil {
		return mapUnsupported(fmt.Errorf("attach device: %w", err))
	}
	return nil
}

// DetachDeviceFragment hot-detaches a single device from the live instance.
func (c *Client) DetachDeviceFragment(ctx context.Context, fragment string) error {
	_, err := utils.DoAPI(ctx, c.hc, http.MethodPut, apiURL("machine.detach-device"),
		[]byte(fragment), http.StatusNoContent)
	if err != nil {
		return mapUnsupported(fmt.Errorf("detach device: %w", err))
	}
	return nil
}

// InterfaceCounters reads cumulative counters for one guest interface.
func (c *Client) InterfaceCounters(ctx context.Context, dev string) (types.NetCounters, error) {
	var counters types.NetCounters
	u := apiURL("counters.net") + "?dev=" + url.QueryEscape(dev)
	body, err := utils.DoAPI(ctx, c.hc, http.MethodGet, u, nil, http.StatusOK)
	if err != nil {
		return counters, mapUnsupported(fmt.Errorf("query net counters for %q: %w", dev, err))
	}
	if err := json.Unmarshal(body, &counters); err != nil {
		return counters, fmt.Errorf("decode net counters: %w", err)
	}
	return counters, nil
}

// BlockCounters reads cumulative counters for one guest block device.
func (c *Client) BlockCounters(ctx context.Context, dev string) (types.BlockCounters, error) {
	var counters types.BlockCounters
	u := apiURL("counters.block") + "?dev=" + url.QueryEscape(dev)
	body, err := utils.DoAPI(ctx, c.hc, http.MethodGet, u, nil, http.StatusOK)
	if err != nil {
		return counters, mapUnsupported(fmt.Errorf("query block counters for %q: %w", dev, err))
	}
	if err := json.Unmarshal(body, &counters); err != nil {
		return counters, fmt.Errorf("decode block counters: %w", err)
	}
	return counters, nil
}

func apiURL(op string) string {
	return "http://localhost/api/v1/" + op
}

// mapUnsupported folds HTTP 501 into ErrUnsupported so callers can apply
// the permanent-downgrade rule with errors.Is.
func mapUnsupported(err error) error {
	var ae *utils.APIError
	if errors.As(err, &ae) && ae.Code == http.StatusNotImplemented {
		return fmt.Errorf("%w: %s", ErrUnsupported, ae.Message)
	}
	return err
}
