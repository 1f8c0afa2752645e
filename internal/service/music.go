package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"xivi-server/internal/client"
	"xivi-server/internal/config"
)

// ErrNoAudioStream is returned when a video exposes no audio streams.
var ErrNoAudioStream = errors.New("no audio stream available")

// Track is one music search result.
type Track struct {
	VideoID string `json:"videoId"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	URL     string `json:"url"`
}

// JSONGetter fetches and decodes a JSON document. *client.APIClient implements it.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// MusicService backs /api/music with a Piped-compatible API.
type MusicService struct {
	api     JSONGetter
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMusicService creates a MusicService.
func NewMusicService(api *client.APIClient, cfg *config.Config, logger *slog.Logger) *MusicService {
	return newMusicService(api, cfg, logger)
}

func newMusicService(api JSONGetter, cfg *config.Config, logger *slog.Logger) *MusicService {
	return &MusicService{
		api:     api,
		baseURL: strings.TrimRight(cfg.Music.BaseURL, "/"),
		timeout: time.Duration(cfg.Music.TimeoutSeconds) * time.Second,
		logger:  logger.With("component", "music_service"),
	}
}

type pipedSearch struct {
	Items []struct {
		URL          string `json:"url"`
		Type         string `json:"type"`
		Title        string `json:"title"`
		UploaderName string `json:"uploaderName"`
	} `json:"items"`
}

type pipedStreams struct {
	AudioStreams []struct {
		URL     string `json:"url"`
		Bitrate int    `json:"bitrate"`
	} `json:"audioStreams"`
}

// Search looks up songs matching q. Results that are not videos are dropped.
func (s *MusicService) Search(ctx context.Context, q string) ([]Track, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	endpoint := s.baseURL + "/search?" + url.Values{"q": {q}, "filter": {"music_songs"}}.Encode()

	var res pipedSearch
	if err := s.api.GetJSON(ctx, endpoint, &res); err != nil {
		return nil, fmt.Errorf("music search: %w", err)
	}

	tracks := make([]Track, 0, len(res.Items))
	for _, item := range res.Items {
		id := videoID(item.URL)
		if id == "" || (item.Type != "" && item.Type != "stream") {
			continue
		}
		tracks = append(tracks, Track{
			VideoID: id,
			Title:   item.Title,
			Artist:  strings.TrimSuffix(item.UploaderName, " - Topic"),
			URL:     "https://www.youtube.com/watch?v=" + url.QueryEscape(id),
		})
	}

	s.logger.Debug("music search", "results", len(tracks))
	return tracks, nil
}

// Stream returns the highest-bitrate audio stream URL for videoID.
func (s *MusicService) Stream(ctx context.Context, videoID string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var res pipedStreams
	if err := s.api.GetJSON(ctx, s.baseURL+"/streams/"+url.PathEscape(videoID), &res); err != nil {
		return "", fmt.Errorf("music stream: %w", err)
	}

	best, bitrate := "", -1
	for _, a := range res.AudioStreams {
		if a.URL != "" && a.Bitrate > bitrate {
			best, bitrate = a.URL, a.Bitrate
		}
	}
	if best == "" {
		return "", ErrNoAudioStream
	}
	return best, nil
}

func (s *MusicService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// videoID extracts v from a Piped item URL such as "/watch?v=abc".
func videoID(itemURL string) string {
	u, err := url.Parse(itemURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("v")
}
