package model

import "encoding/json"

// Client is an app instance paired with the home.
type Client struct {
	ID         string
	HomeID     string
	Label      string
	ClientType string
	Attrs      Attributes
}

// NewClient builds a Client from its full JSON payload.
func NewClient(raw []byte) (*Client, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	return newClientFromMap(m)
}

func newClientFromMap(m map[string]any) (*Client, error) {
	if err := validateFull(KindClient, m); err != nil {
		return nil, err
	}
	c := &Client{Attrs: Attributes(deepCopyMap(m))}
	c.ID = c.Attrs.str("id")
	c.sync()
	return c, nil
}

// ApplyPatch merges a partial JSON payload into the client.
func (c *Client) ApplyPatch(raw []byte) error {
	m, err := decodeObject(raw)
	if err != nil {
		return err
	}
	if err := validatePatch(KindClient, m); err != nil {
		return err
	}
	if err := checkID(KindClient, c.ID, m); err != nil {
		return err
	}
	mergeInto(c.Attrs, m)
	c.sync()
	return nil
}

func (c *Client) sync() {
	c.Attrs["id"] = c.ID
	c.HomeID = c.Attrs.str("homeId")
	c.Label = c.Attrs.str("label")
	c.ClientType = c.Attrs.str("clientType")
}

// EntityID returns the client id.
func (c *Client) EntityID() string { return c.ID }

// Clone returns a deep copy of the client.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.Attrs = c.Attrs.Clone()
	return &cpy
}

// MarshalJSON encodes the client in the cloud's wire shape.
func (c *Client) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(c.Attrs))
}
