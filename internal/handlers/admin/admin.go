package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
	"gopkg.in/yaml.v3"

	"github.com/benjaminschubert/cacheproxy/internal/cache"
	"github.com/benjaminschubert/cacheproxy/internal/config"
	"github.com/benjaminschubert/cacheproxy/internal/handlers"
	"github.com/benjaminschubert/cacheproxy/internal/units"
)

type statsData struct {
	Entries int64       `json:"entries"`
	Size    units.Bytes `json:"size"`
}

type sweepData struct {
	Examined int    `json:"examined"`
	Evicted  int    `json:"evicted"`
	Error    string `json:"error,omitempty"`
}

func RegisterHandler(handler *http.ServeMux, c *cache.Cache, conf *config.Config) error {
	renderedConfig, err := renderConfig(conf)
	if err != nil {
		return err
	}

	handler.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := c.GetStatistics()
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("unable to gather statistics")
			w.WriteHeader(http.StatusInternalServerError)
			if _, err := w.Write([]byte("Unable to gather statistics")); err != nil {
				hlog.FromRequest(r).Panic().Err(err).Msg("error returning an answer")
			}
			return
		}

		handlers.WriteJSON(w, r, http.StatusOK, statsData{stats.Entries, stats.Size})
	})

	handler.HandleFunc("GET /config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		if _, err := w.Write([]byte(renderedConfig)); err != nil {
			hlog.FromRequest(r).Panic().Err(err).Msg("error sending the configuration")
		}
	})

	handler.HandleFunc("POST /sweep", func(w http.ResponseWriter, r *http.Request) {
		id, _ := hlog.IDFromRequest(r)

		result, err := c.SweepExpired(id.String())
		data := sweepData{Examined: result.Examined, Evicted: result.Evicted}
		status := http.StatusOK
		if err != nil {
			data.Error = err.Error()
			status = http.StatusInternalServerError
			if !errors.Is(err, cache.ErrLockUnusable) {
				hlog.FromRequest(r).Error().Err(err).Msg("unexpected error sweeping the cache")
			}
		}

		handlers.WriteJSON(w, r, status, data)
	})

	return nil
}

func renderConfig(conf *config.Config) (string, error) {
	buffer := strings.Builder{}
	encoder := yaml.NewEncoder(&buffer)
	err := encoder.Encode(conf)
	return buffer.String(), err
}
