package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const resultSavePath = "/api/v1/record/result_save"

var ErrSaveRejected = errors.New("record: result rejected")

// Client posts finished runs to the record API.
type Client struct {
	baseURL string
	timeout time.Duration
}

func NewClient(apiURL string, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(apiURL, "/"), timeout: timeout}
}

func (c *Client) SaveResult(ctx context.Context, r Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(c.baseURL + resultSavePath).JSON(r)
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("save result: %w", errs[0])
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("%w: status %d: %s", ErrSaveRejected, code, body)
	}
	return nil
}
