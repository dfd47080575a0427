package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/yolodet/internal/testutil"
)

// RegisterServerSteps registers the HTTP API step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a detection model is loaded$`, testCtx.aDetectionModelIsLoaded)
	sc.Step(`^no detection model is available$`, testCtx.noDetectionModelIsAvailable)
	sc.Step(`^the model detects class (\d+) at (\d+),(\d+),(\d+),(\d+) with confidence ([0-9.]+)$`, testCtx.theModelDetects)
	sc.Step(`^the translation table contains the sample COCO labels$`, testCtx.theTranslationTableContainsSampleLabels)
	sc.Step(`^the default confidence is ([0-9.]+)$`, testCtx.theDefaultConfidenceIs)
	sc.Step(`^rate limiting allows (\d+) requests? per minute$`, testCtx.rateLimitingAllows)
	sc.Step(`^the server is running$`, testCtx.StartServer)

	sc.Step(`^I send a (GET|HEAD|POST|OPTIONS) request to "([^"]*)"$`, testCtx.iSendARequestTo)
	sc.Step(`^I upload a (\d+)x(\d+) image to "([^"]*)"$`, testCtx.iUploadAnImageTo)
	sc.Step(`^I upload a (\d+)x(\d+) image to "([^"]*)" with fields:$`, testCtx.iUploadAnImageWithFields)
	sc.Step(`^I upload a text file to "([^"]*)"$`, testCtx.iUploadATextFileTo)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response header "([^"]*)" should contain "([^"]*)"$`, testCtx.theResponseHeaderShouldContain)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the JSON field "([^"]*)" should be an array of length (\d+)$`, testCtx.theJSONFieldShouldBeArrayOfLength)
	sc.Step(`^the JSON field "([^"]*)" should not be empty$`, testCtx.theJSONFieldShouldNotBeEmpty)
	sc.Step(`^the model should have been asked for confidence ([0-9.]+)$`, testCtx.theModelShouldHaveBeenAskedFor)
}

func (testCtx *TestContext) aDetectionModelIsLoaded() error {
	if testCtx.Detector == nil {
		testCtx.Detector = testutil.NewFakeDetector()
	}
	return nil
}

func (testCtx *TestContext) noDetectionModelIsAvailable() error {
	testCtx.Detector = nil
	return nil
}

func (testCtx *TestContext) theModelDetects(classID, x1, y1, x2, y2 int, confidence float64) error {
	if err := testCtx.aDetectionModelIsLoaded(); err != nil {
		return err
	}
	testCtx.Detector.Boxes = append(testCtx.Detector.Boxes,
		testutil.Box(float64(x1), float64(y1), float64(x2), float64(y2), confidence, classID))
	return nil
}

func (testCtx *TestContext) theTranslationTableContainsSampleLabels() error {
	path := testCtx.TempFile(testCtx.Config.Translation.File)
	return os.WriteFile(path, []byte(testutil.SampleTranslations), 0o600)
}

func (testCtx *TestContext) theDefaultConfidenceIs(confidence float64) error {
	testCtx.Config.Server.DefaultConfidence = confidence
	return nil
}

func (testCtx *TestContext) rateLimitingAllows(perMinute int) error {
	testCtx.RateLimit = serverRateLimit(perMinute)
	return nil
}

// do sends req, starting the server first if a scenario did not.
func (testCtx *TestContext) do(req *http.Request) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	testCtx.LastHTTPHeaders = resp.Header
	return nil
}

func (testCtx *TestContext) iSendARequestTo(method, path string) error {
	if err := testCtx.StartServer(); err != nil {
		return err
	}
	req, err := http.NewRequest(method, testCtx.URL(path), nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) iUploadAnImageTo(width, height int, path string) error {
	return testCtx.upload(path, "scene.png", "image/png", testCtx.pngBytes(width, height), nil)
}

func (testCtx *TestContext) iUploadAnImageWithFields(width, height int, path string, table *godog.Table) error {
	fields := make(map[string]string, len(table.Rows))
	for _, row := range table.Rows {
		if len(row.Cells) != 2 {
			return fmt.Errorf("expected field|value rows, got %d cells", len(row.Cells))
		}
		fields[row.Cells[0].Value] = row.Cells[1].Value
	}
	return testCtx.upload(path, "scene.png", "image/png", testCtx.pngBytes(width, height), fields)
}

func (testCtx *TestContext) iUploadATextFileTo(path string) error {
	return testCtx.upload(path, "notes.txt", "text/plain", []byte("not an image"), nil)
}

func (testCtx *TestContext) pngBytes(width, height int) []byte {
	var buf bytes.Buffer
	if err := encodePNG(&buf, testutil.CreateTestImage(width, height, color.White)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (testCtx *TestContext) upload(path, filename, contentType string, data []byte, fields map[string]string) error {
	if err := testCtx.StartServer(); err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, testCtx.URL(path), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\nBody: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); got != want {
		return fmt.Errorf("expected header %s to be %q, got %q", name, want, got)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldContain(name, want string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); !strings.Contains(got, want) {
		return fmt.Errorf("expected header %s to contain %q, got %q", name, want, got)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !bytes.Contains(testCtx.LastHTTPResponse, []byte(text)) {
		return fmt.Errorf("response does not contain %q\nActual response: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theJSONFieldShouldBe(field, want string) error {
	val, err := testCtx.jsonField(field)
	if err != nil {
		return err
	}
	if got := formatJSONValue(val); got != want {
		return fmt.Errorf("expected %s to be %q, got %q", field, want, got)
	}
	return nil
}

func (testCtx *TestContext) theJSONFieldShouldBeArrayOfLength(field string, length int) error {
	val, err := testCtx.jsonField(field)
	if err != nil {
		return err
	}
	arr, ok := val.([]any)
	if !ok {
		return fmt.Errorf("field '%s' is not an array", field)
	}
	if len(arr) != length {
		return fmt.Errorf("expected %s to have %d elements, got %d", field, length, len(arr))
	}
	return nil
}

func (testCtx *TestContext) theJSONFieldShouldNotBeEmpty(field string) error {
	val, err := testCtx.jsonField(field)
	if err != nil {
		return err
	}
	if s := formatJSONValue(val); s == "" || s == "null" {
		return fmt.Errorf("field '%s' is empty", field)
	}
	return nil
}

func (testCtx *TestContext) theModelShouldHaveBeenAskedFor(confidence float64) error {
	if testCtx.Detector == nil {
		return fmt.Errorf("no detection model in this scenario")
	}
	if got := testCtx.Detector.LastConfidence(); got != confidence {
		return fmt.Errorf("expected the model to be called with confidence %v, got %v", confidence, got)
	}
	return nil
}

// jsonField resolves a dotted path such as "detections.0.label" in the last response.
func (testCtx *TestContext) jsonField(field string) (any, error) {
	var current any
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &current); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	parts := strings.Split(field, ".")
	for i, part := range parts {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid index '%s' in '%s'", part, field)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("cannot navigate deeper into non-object field '%s'", strings.Join(parts[:i], "."))
		}
	}
	return current, nil
}

func formatJSONValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
