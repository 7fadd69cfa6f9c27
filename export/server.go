package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang/glog"

	"github.com/hb9tf/chirpsounder/ionogram"
)

const (
	contentType              = "application/json"
	CollectEndpoint          = "chirpsounder/v1/collect"
	defaultSendSummaryAmount = 1
)

// CollectResponse is returned by the catalog server for every collect call.
type CollectResponse struct {
	Status       string `json:"status"`
	SummaryCount int    `json:"summaryCount"`
}

// Server sends summaries in batches to a remote catalog server.
type Server struct {
	Server            string
	SendSummaryAmount int
	Client            *http.Client
}

func (s *Server) Write(ctx context.Context, summaries <-chan ionogram.Summary) error {
	sendAmount := defaultSendSummaryAmount
	if s.SendSummaryAmount > 0 {
		sendAmount = s.SendSummaryAmount
	}

	var toSend []ionogram.Summary
	for summary := range summaries {
		toSend = append(toSend, summary)
		if len(toSend) < sendAmount {
			continue // we haven't collected enough summaries to send yet
		}
		if err := s.send(ctx, toSend); err != nil {
			glog.Warningf("error sending %d summaries: %s\n", len(toSend), err)
			continue
		}
		toSend = nil
	}
	if len(toSend) > 0 {
		return s.send(ctx, toSend)
	}
	return nil
}

func (s *Server) send(ctx context.Context, summaries []ionogram.Summary) error {
	body, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("error marshalling summaries to JSON: %w", err)
	}

	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.Server, "/"), CollectEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error POSTing summaries: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading POST body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	cr := CollectResponse{}
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return fmt.Errorf("unable to parse collect response: %w", err)
	}
	glog.Infof("submitted %d summaries to server %s", cr.SummaryCount, s.Server)
	return nil
}
