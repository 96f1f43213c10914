// Command surveycli is a terminal client for the survey API. It walks the
// question sequence with the same draft, requirement and autosave behavior
// the web client has.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/digitwin/survey/internal/catalog"
	"github.com/digitwin/survey/internal/services"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "base URL of the survey API")
	email := flag.String("email", "", "respondent email address")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "usage: surveycli -email you@example.com [-server URL]")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := catalog.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "load questions: %v\n", err)
		os.Exit(1)
	}

	gw := &httpGateway{base: strings.TrimRight(*server, "/"), client: &http.Client{Timeout: 15 * time.Second}}
	sv, existing, err := gw.openSurvey(*email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open survey: %v\n", err)
		os.Exit(1)
	}

	session := services.NewSession(services.SessionConfig{
		SurveyID:  sv.ID,
		Gateway:   gw,
		Existing:  existing,
		Completed: sv.IsCompleted,
		Logger:    logger,
	})
	defer session.Close()

	fmt.Printf("DigiTwin Survey for %s (survey #%d)\n", sv.Email, sv.ID)
	fmt.Println("Type your answer; lines accumulate. Commands: :next :prev :rec :stop :progress :quit")

	if session.Completed() {
		fmt.Println("This survey is already completed. Thank you!")
		return
	}

	printQuestion(session)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case ":quit":
			return
		case ":progress":
			printProgress(session)
		case ":rec":
			if err := session.StartRecording(); err != nil {
				fmt.Println("!", err)
			} else {
				fmt.Println("recording... type :stop to finish")
			}
		case ":stop":
			if err := session.StopRecording(); err != nil {
				fmt.Println("!", err)
			} else {
				fmt.Printf("recorded %d seconds\n", session.Draft().RecordedSeconds)
			}
		case ":prev":
			if err := session.Retreat(); err != nil {
				fmt.Println("!", err)
			} else {
				printQuestion(session)
			}
		case ":next":
			if err := session.Advance(); err != nil {
				if errors.Is(err, services.ErrRequirementNotMet) {
					q := session.CurrentQuestion()
					fmt.Printf("! requirement not met (%s)\n", q.Requirement)
				} else {
					fmt.Println("!", err)
				}
				break
			}
			if session.Completed() {
				fmt.Println("Survey completed. Thank you!")
				return
			}
			printQuestion(session)
		default:
			draft := session.Draft()
			text := draft.Text
			if text != "" {
				text += "\n"
			}
			if err := session.SetText(text + line); err != nil {
				fmt.Println("!", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}
}

func printQuestion(s *services.Session) {
	q := s.CurrentQuestion()
	fmt.Printf("\n[%d/%d] %s\n%s. %s\n", s.Index()+1, catalog.Total(), q.Section, q.ID, q.Prompt)
	if q.Requirement != "" {
		fmt.Printf("(%s)\n", q.Requirement)
	}
	d := s.Draft()
	if d.Text != "" {
		fmt.Printf("draft: %d words so far\n", services.CountWords(d.Text))
	}
	if err := s.SaveError(); err != nil {
		fmt.Printf("! last autosave failed: %v\n", err)
	}
}

func printProgress(s *services.Session) {
	sum := s.Progress()
	fmt.Printf("answered %d of %d (%d%%)\n", sum.Answered, sum.Total, sum.Percent)
	for _, sec := range sum.Sections {
		fmt.Printf("  %-45s %d/%d\n", sec.Name, sec.Answered, sec.Size)
	}
	if s.Saving() {
		fmt.Println("  (an autosave is pending)")
	} else if err := s.SaveError(); err != nil {
		fmt.Printf("  ! last autosave failed: %v\n", err)
	}
}

// httpGateway implements services.Gateway over the REST API.
type httpGateway struct {
	base   string
	client *http.Client
}

func (g *httpGateway) openSurvey(email string) (*services.Survey, []*services.Response, error) {
	var sv services.Survey
	if err := g.postJSON("/api/surveys", map[string]string{"email": email}, &sv); err != nil {
		return nil, nil, err
	}
	var out struct {
		Survey    *services.Survey     `json:"survey"`
		Responses []*services.Response `json:"responses"`
	}
	if err := g.getJSON("/api/surveys/by-email/"+url.PathEscape(sv.Email), &out); err != nil {
		return nil, nil, err
	}
	return out.Survey, out.Responses, nil
}

func (g *httpGateway) UpsertResponse(req services.SaveRequest) (*services.Response, error) {
	var resp services.Response
	if err := g.postJSON("/api/responses", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *httpGateway) CompleteSurvey(surveyID int64) error {
	return g.postJSON(fmt.Sprintf("/api/surveys/%d/complete", surveyID), map[string]string{}, nil)
}

func (g *httpGateway) postJSON(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := g.client.Post(g.base+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (g *httpGateway) getJSON(path string, out any) error {
	resp, err := g.client.Get(g.base + path)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
