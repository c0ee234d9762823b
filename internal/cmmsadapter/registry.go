package cmmsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	maintenance "efd-cmms-bridge/internal/maintenance/domain"
)

type cardResponse struct {
	Data map[string]any `json:"data"`
}

type cardsResponse struct {
	Data []map[string]any `json:"data"`
}

func (c *Client) assetPath(assetID string) string {
	return "/classes/" + url.PathEscape(c.assetClass) + "/cards/" + url.PathEscape(assetID)
}

func (c *Client) configsPath() string {
	return "/classes/" + url.PathEscape(c.configClass) + "/cards"
}

func (c *Client) instancesPath() string {
	return "/processes/" + url.PathEscape(c.processClass) + "/instances"
}

// GetAttribute reads one attribute of an asset card. An absent attribute is nil.
func (c *Client) GetAttribute(ctx context.Context, assetID, attribute string) (any, error) {
	if assetID == "" || attribute == "" {
		return nil, errors.New("cmms: empty asset id or attribute")
	}
	var resp cardResponse
	if err := c.doJSON(ctx, "get_attribute", http.MethodGet, c.assetPath(assetID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data[attribute], nil
}

// SetAttribute overwrites one attribute of an asset card.
func (c *Client) SetAttribute(ctx context.Context, assetID, attribute string, value any) error {
	if assetID == "" || attribute == "" {
		return errors.New("cmms: empty asset id or attribute")
	}
	body := map[string]any{attribute: value}
	return c.doJSON(ctx, "set_attribute", http.MethodPut, c.assetPath(assetID), body, nil)
}

// ListTriggerConfigs lists every preventive-maintenance configuration card.
func (c *Client) ListTriggerConfigs(ctx context.Context) ([]maintenance.TriggerConfig, error) {
	var resp cardsResponse
	if err := c.doJSON(ctx, "list_trigger_configs", http.MethodGet, c.configsPath(), nil, &resp); err != nil {
		return nil, err
	}
	configs := make([]maintenance.TriggerConfig, 0, len(resp.Data))
	for _, card := range resp.Data {
		configs = append(configs, decodeTriggerConfig(card))
	}
	return configs, nil
}

// GetTriggerConfig loads the full configuration card.
func (c *Client) GetTriggerConfig(ctx context.Context, configID string) (maintenance.TriggerConfigDetail, error) {
	if configID == "" {
		return maintenance.TriggerConfigDetail{}, errors.New("cmms: empty config id")
	}
	var resp cardResponse
	path := c.configsPath() + "/" + url.PathEscape(configID)
	if err := c.doJSON(ctx, "get_trigger_config", http.MethodGet, path, nil, &resp); err != nil {
		return maintenance.TriggerConfigDetail{}, err
	}
	if len(resp.Data) == 0 {
		return maintenance.TriggerConfigDetail{}, fmt.Errorf("%w: config %s", ErrNotFound, configID)
	}
	detail := decodeConfigDetail(resp.Data)
	if detail.ID == "" {
		detail.ID = configID
	}
	return detail, nil
}

// CreatePM starts a preventive-maintenance process instance for the configuration.
func (c *Client) CreatePM(ctx context.Context, detail maintenance.TriggerConfigDetail) (string, error) {
	if detail.ID == "" {
		return "", errors.New("cmms: empty config id")
	}
	body := map[string]any{
		"maintConf":         detail.ID,
		"PrevMaintConfig":   detail.ID,
		"ShortDescr":        detail.Description,
		"Site":              detail.Site,
		"Action":            detail.Action,
		"CISubset":          detail.CISubset,
		"Team":              detail.Team,
		"Priority":          detail.Priority,
		"EstimatedDuration": detail.EstimatedDuration,
		"Notes":             detail.Notes,
		"ActivityType":      detail.ActivityType,
	}
	var resp cardResponse
	if err := c.doJSON(ctx, "create_pm", http.MethodPost, c.instancesPath(), body, &resp); err != nil {
		return "", err
	}
	id := idString(resp.Data["_id"])
	if id == "" {
		return "", errors.New("cmms: create PM returned no id")
	}
	return id, nil
}

// ListPMActivities lists the pending activities of a PM instance.
func (c *Client) ListPMActivities(ctx context.Context, pmID string) ([]maintenance.PMActivity, error) {
	if pmID == "" {
		return nil, errors.New("cmms: empty PM id")
	}
	var resp cardsResponse
	path := c.instancesPath() + "/" + url.PathEscape(pmID) + "/activities"
	if err := c.doJSON(ctx, "list_pm_activities", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	activities := make([]maintenance.PMActivity, 0, len(resp.Data))
	for _, item := range resp.Data {
		id := idString(item["_id"])
		if id == "" {
			continue
		}
		activities = append(activities, maintenance.PMActivity{
			ID:          id,
			Description: stringOf(item["_description"]),
		})
	}
	return activities, nil
}

// AdvancePM submits the current activity of a PM instance.
func (c *Client) AdvancePM(ctx context.Context, pmID string, req maintenance.AdvanceRequest) error {
	if pmID == "" || req.ActivityID == "" {
		return errors.New("cmms: empty PM or activity id")
	}
	body := map[string]any{
		"_activity":      req.ActivityID,
		"_type":          c.processClass,
		"_advance":       true,
		"status":         req.Status,
		"execution_date": req.ExecutionDate,
	}
	path := c.instancesPath() + "/" + url.PathEscape(pmID)
	return c.doJSON(ctx, "advance_pm", http.MethodPut, path, body, nil)
}

// ListPMInstances lists every PM process instance.
func (c *Client) ListPMInstances(ctx context.Context) ([]maintenance.PMInstance, error) {
	var resp cardsResponse
	if err := c.doJSON(ctx, "list_pm_instances", http.MethodGet, c.instancesPath(), nil, &resp); err != nil {
		return nil, err
	}
	instances := make([]maintenance.PMInstance, 0, len(resp.Data))
	for _, item := range resp.Data {
		instances = append(instances, maintenance.PMInstance{
			ID:       idString(item["_id"]),
			ConfigID: idString(item["PrevMaintConfig"]),
			Status:   stringOf(item["_status_description"]),
		})
	}
	return instances, nil
}

func decodeTriggerConfig(card map[string]any) maintenance.TriggerConfig {
	return maintenance.TriggerConfig{
		ID:          idString(card["_id"]),
		AssetID:     idString(card["Asset_related"]),
		Description: stringOf(card["Description"]),
		Trigger: maintenance.DecodeTrigger(maintenance.TriggerFields{
			Numeric: card["trigger_integer"],
			String:  card["trigger_string"],
			Time:    card["trigger_time"],
			Boolean: card["trigger_True_False"],
		}),
	}
}

func decodeConfigDetail(card map[string]any) maintenance.TriggerConfigDetail {
	return maintenance.TriggerConfigDetail{
		ID:                idString(card["_id"]),
		Description:       stringOf(card["Description"]),
		Site:              card["Site"],
		Action:            card["Action"],
		CISubset:          card["CISubset"],
		Team:              card["Team"],
		Priority:          card["Priority"],
		EstimatedDuration: card["EstimatedDuration"],
		Notes:             stringOf(card["Notes"]),
		ActivityType:      card["ActivityType"],
	}
}

// idString normalizes card ids, which the registry returns as numbers or strings.
func idString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}

func stringOf(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
