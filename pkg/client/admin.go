package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/usherhq/usher/internal/api"
	"github.com/usherhq/usher/internal/core"
	"github.com/usherhq/usher/internal/service"
	"github.com/usherhq/usher/internal/tasks"
)

// CreateApplication registers a new application. The response is the only
// place the generated key ever appears.
func (c *Client) CreateApplication(ctx context.Context, req service.CreateApplicationRequest) (*core.Application, error) {
	cred, err := c.ticketCredential()
	if err != nil {
		return nil, err
	}
	var app core.Application
	if _, err := c.request(ctx, http.MethodPost, api.AdminApplicationsRoute, cred, req, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) GetApplication(ctx context.Context, id string) (*core.Application, error) {
	cred, err := c.ticketCredential()
	if err != nil {
		return nil, err
	}
	var app core.Application
	if _, err := c.request(ctx, http.MethodGet, applicationPath(id), cred, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// GrantAdminScope adds a reserved admin scope to a grant.
func (c *Client) GrantAdminScope(ctx context.Context, grantID, adminScope string) (*core.Grant, error) {
	return c.mutateGrantScope(ctx, http.MethodPost, grantID, adminScope)
}

// RevokeAdminScope removes a reserved admin scope from a grant.
func (c *Client) RevokeAdminScope(ctx context.Context, grantID, adminScope string) (*core.Grant, error) {
	return c.mutateGrantScope(ctx, http.MethodDelete, grantID, adminScope)
}

func (c *Client) mutateGrantScope(ctx context.Context, method, grantID, adminScope string) (*core.Grant, error) {
	cred, err := c.ticketCredential()
	if err != nil {
		return nil, err
	}
	var grant core.Grant
	path := strings.Replace(api.AdminGrantScopesRoute, "{id}", grantID, 1)
	if _, err := c.request(ctx, method, path, cred, map[string]string{"scope": adminScope}, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]tasks.TaskStatus, error) {
	cred, err := c.ticketCredential()
	if err != nil {
		return nil, err
	}
	var res []tasks.TaskStatus
	if _, err := c.request(ctx, http.MethodGet, api.ListTasksRoute, cred, nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) TriggerTask(ctx context.Context, name string) error {
	cred, err := c.ticketCredential()
	if err != nil {
		return err
	}
	path := strings.Replace(api.TriggerTaskRoute, "{name}", name, 1)
	_, err = c.request(ctx, http.MethodPost, path, cred, nil, nil)
	return err
}

func applicationPath(id string) string {
	return strings.Replace(api.AdminApplicationRoute, "{id}", id, 1)
}
