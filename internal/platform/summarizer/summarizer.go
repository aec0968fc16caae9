// Package summarizer asks an OpenAI-compatible chat-completions endpoint to
// summarize a patient self-report for the therapist.
package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"
)

var (
	ErrDisabled    = errors.New("summarizer not configured")
	ErrBadResponse = errors.New("summarizer returned an unusable response")
)

// Report is the self-report content fed into the prompt. Optional text
// fields are empty when the patient left them out.
type Report struct {
	DolorInicial            int
	DolorFinal              int
	UbicacionDolor          string
	DiasEjercicio           int
	EjerciciosRealizados    string
	EjerciciosDificiles     string
	MovilidadPercibida      string
	Fatiga                  int
	LimitacionesFuncionales string
	EstadoAnimo             string
	Motivacion              int
	ComentarioPaciente      string
}

// Summary is the structured answer.
type Summary struct {
	Resumen     string   `json:"resumen"`
	PuntosClave []string `json:"puntosClave"`
	Sugerencia  string   `json:"sugerencia"`
}

const systemPrompt = "Eres un asistente experto en fisioterapia. Respondes únicamente con un objeto JSON " +
	`con las claves "resumen" (string), "puntosClave" (arreglo de 3 a 5 strings) y "sugerencia" (string).`

var userPrompt = template.Must(template.New("avance").Funcs(template.FuncMap{
	"orNone": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "(sin datos)"
		}
		return s
	},
}).Parse(`Analiza el siguiente auto-reporte de un paciente y genera un resumen claro y conciso para el terapeuta.

Datos del auto-reporte:
- Dolor (Inicial/Final): {{.DolorInicial}}/10 - {{.DolorFinal}}/10
- Ubicación del Dolor: {{.UbicacionDolor}}
- Días de Ejercicio (Semana): {{.DiasEjercicio}}/7
- Ejercicios Realizados: {{.EjerciciosRealizados}}
- Dificultades: {{orNone .EjerciciosDificiles}}
- Movilidad Percibida: {{.MovilidadPercibida}}
- Fatiga: {{.Fatiga}}/10
- Limitaciones Funcionales: {{orNone .LimitacionesFuncionales}}
- Estado de Ánimo: {{.EstadoAnimo}}
- Motivación: {{.Motivacion}}/10
- Comentarios Adicionales: {{orNone .ComentarioPaciente}}

Tu tarea es:
1. Resumen: 2-3 frases sobre el estado general del paciente, destacando cambios significativos en dolor, adherencia y funcionalidad.
2. Puntos Clave: de 3 a 5 puntos clave o banderas rojas que el terapeuta deba notar.
3. Sugerencia: una sugerencia concreta para la próxima sesión.
`))

// RenderPrompt returns the user prompt for r.
func RenderPrompt(r Report) (string, error) {
	var buf bytes.Buffer
	if err := userPrompt.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// Config points the client at an endpoint.
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client performs one request per call. There is no retry.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.URL != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize sends r and decodes the structured summary.
func (c *Client) Summarize(ctx context.Context, r Report) (*Summary, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	prompt, err := RenderPrompt(r)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call summarizer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read summarizer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("summarizer returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil || len(cr.Choices) == 0 {
		return nil, ErrBadResponse
	}
	return parseSummary(cr.Choices[0].Message.Content)
}

// parseSummary decodes the model output, tolerating a fenced code block,
// and keeps at most five key points.
func parseSummary(content string) (*Summary, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var s Summary
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &s); err != nil {
		return nil, ErrBadResponse
	}
	if strings.TrimSpace(s.Resumen) == "" || len(s.PuntosClave) == 0 {
		return nil, ErrBadResponse
	}
	if len(s.PuntosClave) > 5 {
		s.PuntosClave = s.PuntosClave[:5]
	}
	return &s, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
