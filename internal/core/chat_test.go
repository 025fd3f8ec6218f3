package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"intake-chat/internal/backend"
	"intake-chat/internal/cache"
	"intake-chat/internal/events"
	"intake-chat/internal/render"
	"intake-chat/pkg"
)

// fakeBackend records calls and returns canned replies.
type fakeBackend struct {
	mu sync.Mutex

	messageReqs []pkg.ProcessMessageRequest
	messageResp *pkg.ProcessMessageResponse
	messageErr  error

	imageResp *pkg.MedicationImageResponse
	imageErr  error

	doctorReqs []pkg.DoctorRequest
	doctorResp *pkg.DoctorResponse
	doctorErr  error

	recsResp *pkg.RecommendationsResponse
	recsErr  error

	followResp *pkg.FollowUpResponse
	followErr  error

	lookupCalls int
	lookupResp  *pkg.MedicationLookupResponse
	lookupErr   error
}

func (f *fakeBackend) ProcessMessage(_ context.Context, req pkg.ProcessMessageRequest) (*pkg.ProcessMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageReqs = append(f.messageReqs, req)
	if f.messageErr != nil {
		return nil, f.messageErr
	}
	if f.messageResp == nil {
		return &pkg.ProcessMessageResponse{}, nil
	}
	return f.messageResp, nil
}

func (f *fakeBackend) ProcessMedicationImage(context.Context, backend.Image) (*pkg.MedicationImageResponse, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return f.imageResp, nil
}

func (f *fakeBackend) DoctorSummaryAndQA(_ context.Context, req pkg.DoctorRequest) (*pkg.DoctorResponse, error) {
	f.mu.Lock()
	f.doctorReqs = append(f.doctorReqs, req)
	f.mu.Unlock()
	if f.doctorErr != nil {
		return nil, f.doctorErr
	}
	return f.doctorResp, nil
}

func (f *fakeBackend) GenerateRecommendations(context.Context, pkg.PatientRecord) (*pkg.RecommendationsResponse, error) {
	if f.recsErr != nil {
		return nil, f.recsErr
	}
	return f.recsResp, nil
}

func (f *fakeBackend) GenerateFollowUp(context.Context) (*pkg.FollowUpResponse, error) {
	if f.followErr != nil {
		return nil, f.followErr
	}
	return f.followResp, nil
}

func (f *fakeBackend) QueryPatientMedications(context.Context, string) (*pkg.MedicationLookupResponse, error) {
	f.mu.Lock()
	f.lookupCalls++
	f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.lookupResp, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type memoryCache struct {
	data map[string]string
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key, value string) error {
	c.data[key] = value
	return nil
}

func (c *memoryCache) Close() error { return nil }

// mergingBackend behaves like processMessage: each turn's output is deep
// merged into the record it was sent and the whole record comes back.
type mergingBackend struct {
	fakeBackend
	outputs []string
}

func (m *mergingBackend) ProcessMessage(_ context.Context, req pkg.ProcessMessageRequest) (*pkg.ProcessMessageResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageReqs = append(m.messageReqs, req)

	sent, err := json.Marshal(req.CurrentRecord)
	if err != nil {
		return nil, err
	}
	var record map[string]interface{}
	if err := json.Unmarshal(sent, &record); err != nil {
		return nil, err
	}
	var output map[string]interface{}
	if err := json.Unmarshal([]byte(m.outputs[0]), &output); err != nil {
		return nil, err
	}
	m.outputs = m.outputs[1:]
	deepUpdate(record, output)

	merged, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return &pkg.ProcessMessageResponse{UpdatedRecord: merged, Message: "Noted."}, nil
}

func deepUpdate(dst, src map[string]interface{}) {
	for k, v := range src {
		sub, isMap := v.(map[string]interface{})
		cur, curIsMap := dst[k].(map[string]interface{})
		if isMap && curIsMap {
			deepUpdate(cur, sub)
			continue
		}
		dst[k] = v
	}
}

func newTestSession() *Session {
	return NewSessionStore(0).Create()
}

func TestSendMessageAppliesUpdate(t *testing.T) {
	fb := &fakeBackend{messageResp: &pkg.ProcessMessageResponse{
		UpdatedRecord:     raw(`{"symptoms":{"current":{"fatigue":true}}}`),
		CompletedSections: raw(`["symptoms-current"]`),
		NextPrompt:        raw(`{"prompt":"Do you check your blood sugar?","field":"blood_sugar"}`),
	}}
	svc := NewChatService(fb, nil, nil, 0)
	sess := newTestSession()

	reply, err := svc.SendMessage(context.Background(), sess, "  I've been tired  ")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Failed {
		t.Fatal("reply marked failed")
	}
	if reply.Message != "<strong>Do you check your blood sugar?</strong>" {
		t.Errorf("reply = %q, want the next prompt formatted", reply.Message)
	}
	if len(fb.messageReqs) != 1 || fb.messageReqs[0].UserMessage != "I've been tired" {
		t.Fatalf("requests = %+v", fb.messageReqs)
	}
	if fb.messageReqs[0].CurrentPrompt != nil {
		t.Error("first request should carry no prompt")
	}
	if !sess.State.IsSectionComplete("symptoms-current") {
		t.Error("section not completed")
	}

	h := sess.State.History()
	if len(h) != 2 || h[0].Sender != pkg.RolePatient || h[1].Sender != pkg.RoleBot {
		t.Fatalf("history = %+v", h)
	}

	// The stored turn is echoed on the next call.
	if _, err := svc.SendMessage(context.Background(), sess, "yes, daily"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got := fb.messageReqs[1].CurrentPrompt; got == nil || got.Field != "blood_sugar" {
		t.Errorf("second request prompt = %+v", got)
	}
}

func TestSendMessagePrefersBackendMessage(t *testing.T) {
	fb := &fakeBackend{messageResp: &pkg.ProcessMessageResponse{
		Message:    "Thanks!\n- Metformin\n- Insulin",
		NextPrompt: raw(`{"prompt":"ignored?"}`),
	}}
	svc := NewChatService(fb, nil, nil, 0)

	reply, err := svc.SendMessage(context.Background(), newTestSession(), "my meds")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if want := "Thanks!<ul><li>Metformin</li><li>Insulin</li></ul>"; reply.Message != want {
		t.Errorf("reply = %q, want %q", reply.Message, want)
	}
}

func TestSendMessageEmpty(t *testing.T) {
	fb := &fakeBackend{}
	svc := NewChatService(fb, nil, nil, 0)
	sess := newTestSession()

	_, err := svc.SendMessage(context.Background(), sess, "   ")
	if !IsValidationError(err) || !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want empty message validation error", err)
	}
	if len(fb.messageReqs) != 0 {
		t.Error("backend called for empty message")
	}
	if len(sess.State.History()) != 0 {
		t.Error("history changed for empty message")
	}
}

func TestSendMessageBackendFailure(t *testing.T) {
	fb := &fakeBackend{messageErr: &backend.StatusError{Function: backend.FnProcessMessage, StatusCode: 500}}
	svc := NewChatService(fb, nil, nil, 0)
	sess := newTestSession()
	sess.State.ApplyBackendUpdate(Update{Completed: []string{"symptoms-current"}})
	before := sess.State.Snapshot()

	reply, err := svc.SendMessage(context.Background(), sess, "hello")
	if err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	if !reply.Failed || reply.Message != render.BotMessage(ErrorReply) {
		t.Errorf("reply = %+v, want apology", reply)
	}
	after := sess.State.Snapshot()
	if len(after.Completed) != len(before.Completed) || after.Turn != before.Turn {
		t.Error("state changed after failed call")
	}
	h := sess.State.History()
	if len(h) != 2 || h[1].Content != render.BotMessage(ErrorReply) {
		t.Errorf("history = %+v", h)
	}
}

func TestSendMessageCap(t *testing.T) {
	fb := &fakeBackend{messageResp: &pkg.ProcessMessageResponse{Message: "ok"}}
	svc := NewChatService(fb, nil, nil, 2)
	sess := newTestSession()

	for i := 0; i < 2; i++ {
		if _, err := svc.SendMessage(context.Background(), sess, "answer"); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	reply, err := svc.SendMessage(context.Background(), sess, "one more")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !reply.Capped {
		t.Error("third message not capped")
	}
	if len(fb.messageReqs) != 2 {
		t.Errorf("backend calls = %d, want 2", len(fb.messageReqs))
	}
}

func TestReadyToInsertPublishesOnce(t *testing.T) {
	fb := &fakeBackend{messageResp: &pkg.ProcessMessageResponse{Message: "All done", ReadyToInsert: true}}
	pub := &recordingPublisher{}
	svc := NewChatService(fb, pub, nil, 0)
	sess := newTestSession()

	for i := 0; i < 2; i++ {
		reply, err := svc.SendMessage(context.Background(), sess, "that's all")
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		if !reply.ReadyToInsert {
			t.Error("reply not ready")
		}
	}
	if !sess.Ready() {
		t.Error("session not marked ready")
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != events.TypeIntakeReady || ev.SessionID != sess.ID {
		t.Errorf("event = %+v", ev)
	}
}

// stalledPublisher blocks until its context ends.
type stalledPublisher struct {
	calls      int
	errAtStart error
	deadline   bool
}

func (p *stalledPublisher) Publish(ctx context.Context, _ events.Event) error {
	p.calls++
	p.errAtStart = ctx.Err()
	_, p.deadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func (p *stalledPublisher) Close() error { return nil }

func TestReadyPublishIsBounded(t *testing.T) {
	fb := &fakeBackend{messageResp: &pkg.ProcessMessageResponse{Message: "All done", ReadyToInsert: true}}
	pub := &stalledPublisher{}
	svc := NewChatService(fb, pub, nil, 0)
	svc.PublishTimeout = 50 * time.Millisecond

	// A request whose client already went away still gets its event out.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan *Reply, 1)
	go func() {
		reply, err := svc.SendMessage(ctx, newTestSession(), "that's all")
		if err != nil {
			t.Errorf("SendMessage: %v", err)
		}
		done <- reply
	}()
	select {
	case reply := <-done:
		if reply == nil || !reply.ReadyToInsert || reply.Failed {
			t.Errorf("reply = %+v", reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendMessage blocked on a stalled publisher")
	}
	if pub.calls != 1 || pub.errAtStart != nil || !pub.deadline {
		t.Errorf("publisher saw calls=%d err=%v deadline=%v", pub.calls, pub.errAtStart, pub.deadline)
	}
}

func TestUploadMedicationImage(t *testing.T) {
	tests := []struct {
		name     string
		resp     *pkg.MedicationImageResponse
		err      error
		want     string
		wantInfo string
		failed   bool
	}{
		{
			name:     "extracted",
			resp:     &pkg.MedicationImageResponse{MedicationInfo: "Metformin 500mg twice daily"},
			want:     ImageExtractedReply,
			wantInfo: "Metformin 500mg twice daily",
		},
		{
			name: "nothing found",
			resp: &pkg.MedicationImageResponse{},
			want: ImageEmptyReply,
		},
		{
			name:   "backend error",
			err:    errors.New("connection refused"),
			want:   ImageErrorReply,
			failed: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{imageResp: tt.resp, imageErr: tt.err}
			svc := NewChatService(fb, nil, nil, 0)
			sess := newTestSession()

			reply, err := svc.UploadMedicationImage(context.Background(), sess, backend.Image{Data: []byte("png")})
			if err != nil {
				t.Fatalf("UploadMedicationImage: %v", err)
			}
			if reply.Message != render.BotMessage(tt.want) || reply.MedicationInfo != tt.wantInfo || reply.Failed != tt.failed {
				t.Errorf("reply = %+v", reply)
			}
		})
	}
}

func TestUploadMedicationImageAppliesRecord(t *testing.T) {
	fb := &fakeBackend{imageResp: &pkg.MedicationImageResponse{
		MedicationInfo:    "Lisinopril 10mg",
		UpdatedRecord:     raw(`{"symptoms":{"medications":{"medication_list":[{"name":"Lisinopril","dosage":"10mg"}]}}}`),
		CompletedSections: raw(`["symptoms-medications"]`),
	}}
	svc := NewChatService(fb, nil, nil, 0)
	sess := newTestSession()

	if _, err := svc.UploadMedicationImage(context.Background(), sess, backend.Image{Data: []byte("jpg")}); err != nil {
		t.Fatalf("UploadMedicationImage: %v", err)
	}
	if !sess.State.IsSectionComplete("symptoms-medications") {
		t.Error("section not completed")
	}
	if got := sess.State.Record().Symptoms.Medications.List; len(got) != 1 || got[0].Name != "Lisinopril" {
		t.Errorf("medications = %+v", got)
	}
}

func TestUploadMedicationImageEmpty(t *testing.T) {
	svc := NewChatService(&fakeBackend{}, nil, nil, 0)
	_, err := svc.UploadMedicationImage(context.Background(), newTestSession(), backend.Image{})
	if !errors.Is(err, ErrEmptyImage) {
		t.Errorf("err = %v, want ErrEmptyImage", err)
	}
}

func TestLookupPatient(t *testing.T) {
	fb := &fakeBackend{
		lookupResp:  &pkg.MedicationLookupResponse{Medications: "Metformin, Atorvastatin"},
		messageResp: &pkg.ProcessMessageResponse{Message: "Got it."},
	}
	lookups := &memoryCache{data: map[string]string{}}
	svc := NewChatService(fb, nil, lookups, 0)
	sess := newTestSession()

	for i := 0; i < 2; i++ {
		if _, err := svc.LookupPatient(context.Background(), sess, " P-100 "); err != nil {
			t.Fatalf("LookupPatient: %v", err)
		}
	}
	want := "Patient P-100 is taking the following medications: Metformin, Atorvastatin"
	if fb.messageReqs[0].UserMessage != want {
		t.Errorf("message = %q, want %q", fb.messageReqs[0].UserMessage, want)
	}
	if fb.lookupCalls != 1 {
		t.Errorf("lookup calls = %d, want 1 (second served from cache)", fb.lookupCalls)
	}
}

func TestLookupPatientErrors(t *testing.T) {
	svc := NewChatService(&fakeBackend{}, nil, nil, 0)
	if _, err := svc.LookupPatient(context.Background(), newTestSession(), ""); !errors.Is(err, ErrEmptyPatientID) {
		t.Errorf("empty id: err = %v", err)
	}

	notFound := &fakeBackend{lookupErr: &backend.StatusError{Function: backend.FnQueryPatientMedications, StatusCode: http.StatusNotFound}}
	svc = NewChatService(notFound, nil, nil, 0)
	if _, err := svc.LookupPatient(context.Background(), newTestSession(), "P-1"); !errors.Is(err, ErrNoMedications) {
		t.Errorf("404: err = %v, want ErrNoMedications", err)
	}

	empty := &fakeBackend{lookupResp: &pkg.MedicationLookupResponse{}}
	svc = NewChatService(empty, nil, nil, 0)
	if _, err := svc.LookupPatient(context.Background(), newTestSession(), "P-1"); !errors.Is(err, ErrNoMedications) {
		t.Errorf("empty: err = %v, want ErrNoMedications", err)
	}

	broken := &fakeBackend{lookupErr: errors.New("timeout")}
	svc = NewChatService(broken, nil, nil, 0)
	_, err := svc.LookupPatient(context.Background(), newTestSession(), "P-1")
	if err == nil || errors.Is(err, ErrNoMedications) || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("transport error: err = %v", err)
	}
}

func TestCorrectionsSurviveBackendMerge(t *testing.T) {
	tests := []struct {
		name  string
		turns []string
		got   func(pkg.PatientRecord) string
		want  string
	}{
		{
			name: "exercise frequency",
			turns: []string{
				`{"lifestyle":{"activity":{"exercise_frequency":"Daily"}}}`,
				`{"lifestyle":{"activity":{"exercise_frequency":"Rarely"}}}`,
			},
			got:  func(r pkg.PatientRecord) string { return r.Lifestyle.Activity.Frequency },
			want: "Rarely",
		},
		{
			name: "other symptoms",
			turns: []string{
				`{"symptoms":{"current":{"fatigue":true,"other_symptoms":"headache"}}}`,
				`{"symptoms":{"current":{"other_symptoms":"dizziness"}}}`,
			},
			got:  func(r pkg.PatientRecord) string { return r.Symptoms.Current.Other },
			want: "dizziness",
		},
		{
			name: "diet",
			turns: []string{
				`{"lifestyle":{"diet":{"overall_health":"Good"}}}`,
				`{"lifestyle":{"diet":{"overall_health":"Poor"}}}`,
			},
			got:  func(r pkg.PatientRecord) string { return r.Lifestyle.Diet.Description },
			want: "Poor",
		},
		{
			name: "provider",
			turns: []string{
				`{"additional":{"healthcare":{"seeing_doctor":true,"provider_details":"Dr. Lee"}}}`,
				`{"additional":{"healthcare":{"provider_details":"Dr. Patel"}}}`,
			},
			got:  func(r pkg.PatientRecord) string { return r.Additional.Healthcare.ProviderName },
			want: "Dr. Patel",
		},
		{
			name: "cognitive withdrawn",
			turns: []string{
				`{"lifestyle":{"cognitive":{"has_changes":true,"description":"Forgetful"}}}`,
				`{"lifestyle":{"cognitive":{"has_changes":false,"description":""}}}`,
			},
			got:  func(r pkg.PatientRecord) string { return r.Lifestyle.Cognitive.Status },
			want: pkg.CognitiveNoChanges,
		},
		{
			name: "medication problems withdrawn",
			turns: []string{
				`{"symptoms":{"medications":{"problems":{"has_problems":true,"description":"nausea"}}}}`,
				`{"symptoms":{"medications":{"problems":{"has_problems":false,"description":""}}}}`,
			},
			got:  func(r pkg.PatientRecord) string { return r.Symptoms.Medications.Problems },
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Map iteration order varies, so repeat to catch an unstable pick.
			for i := 0; i < 50; i++ {
				mb := &mergingBackend{outputs: append([]string{}, tt.turns...)}
				svc := NewChatService(mb, nil, nil, 0)
				sess := newTestSession()
				for range tt.turns {
					if _, err := svc.SendMessage(context.Background(), sess, "update"); err != nil {
						t.Fatalf("SendMessage: %v", err)
					}
				}
				if got := tt.got(sess.State.Record()); got != tt.want {
					t.Fatalf("run %d: got %q, want %q", i, got, tt.want)
				}
			}
		})
	}
}

func TestUnansweredCognitiveStaysEmpty(t *testing.T) {
	mb := &mergingBackend{outputs: []string{`{"lifestyle":{"diet":{"overall_health":"Good"}}}`}}
	svc := NewChatService(mb, nil, nil, 0)
	sess := newTestSession()
	if _, err := svc.SendMessage(context.Background(), sess, "I eat well"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	rec := sess.State.Record()
	if rec.Lifestyle.Cognitive.Status != "" || rec.Symptoms.Medications.Problems != "" {
		t.Errorf("unanswered sections filled in: %+v", rec)
	}
}
