// Command stubserver runs a local record store and a multipart
// transcription endpoint for developing the bot without remote services.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/skypro1111/voice-archive-bot/internal/audio"
	"github.com/skypro1111/voice-archive-bot/internal/storage"
	"github.com/skypro1111/voice-archive-bot/internal/transcription"
)

const stubText = "Це тестова транскрипція аудіо фрагменту з українською мовою"

func main() {
	addr := flag.String("addr", ":5000", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated transcription latency")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := storage.NewMemoryServer()

	router := httprouter.New()
	router.Handler(http.MethodPost, "/add/data", store)
	router.Handler(http.MethodGet, "/get/data", store)
	router.POST("/transcribe", transcribeHandler(logger, *delay))
	router.GET("/health", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "records": store.Len()})
	})

	logger.Info("Stub server starting",
		slog.String("address", *addr),
		slog.String("storage", "POST /add/data, GET /get/data"),
		slog.String("transcription", "POST /transcribe"),
	)

	server := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func transcribeHandler(logger *slog.Logger, delay time.Duration) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading audio file", http.StatusInternalServerError)
			return
		}

		var duration float64
		if pcm, err := audio.DecodeWAV(data); err == nil {
			duration = pcm.Duration().Seconds()
		}

		logger.Info("Transcription request received",
			slog.String("request_id", r.FormValue("request_id")),
			slog.String("filename", header.Filename),
			slog.Int("size", len(data)),
			slog.String("format", r.FormValue("format")),
			slog.String("language", r.FormValue("language")),
			slog.String("model", r.FormValue("model")),
			slog.Float64("duration", duration),
		)

		time.Sleep(delay)

		language := r.FormValue("language")
		if language == "" {
			language = "uk"
		}

		if r.FormValue("response_format") == "text" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, stubText)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(transcription.Response{
			Text:     stubText,
			Language: language,
			Duration: duration,
		})
	}
}
