package handler

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/model"
	"github.com/codefox-spec/AI-Assisted-Autonomous-Ground-Combat-Vehicle/stream"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testJPEG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: shade, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newStreamServer(t *testing.T, pubs ...*stream.Publisher) *httptest.Server {
	t.Helper()
	r := gin.New()
	NewStreamHandler(pubs...).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamDeliversChunks(t *testing.T) {
	pub := stream.NewPublisher("video1")
	srv := newStreamServer(t, pub)

	resp, err := http.Get(srv.URL + "/video1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" || params["boundary"] != model.Boundary {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	waitFor(t, "subscriber", func() bool { return pub.Stats().Subscribers == 1 })

	body := bufio.NewReader(resp.Body)
	var received bytes.Buffer
	chunks := []*model.Chunk{
		model.NewChunk("video1", 1, testJPEG(t, 40)),
		model.NewChunk("video1", 2, testJPEG(t, 200)),
		model.NewChunk("video1", 3, testJPEG(t, 120)),
	}
	for _, c := range chunks {
		pub.Publish(c)
		want := stream.Frame(c)
		got := make([]byte, len(want))
		if _, err := io.ReadFull(body, got); err != nil {
			t.Fatalf("chunk %d: %v", c.Seq, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("chunk %d framed incorrectly", c.Seq)
		}
		received.Write(got)
	}

	pub.Close()
	rest, err := io.ReadAll(body)
	if err != nil || len(rest) != 0 {
		t.Fatalf("after close: %d bytes, err %v", len(rest), err)
	}

	// 最后一个分片之后没有分隔符，只校验前两个
	mr := multipart.NewReader(&received, params["boundary"])
	for i := 0; i < 2; i++ {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if ct := part.Header.Get("Content-Type"); ct != model.ContentTypeJPEG {
			t.Errorf("part %d content type = %q", i, ct)
		}
		if _, err := jpeg.Decode(part); err != nil {
			t.Errorf("part %d is not a jpeg: %v", i, err)
		}
	}
}

func TestStreamDisconnectUnsubscribes(t *testing.T) {
	pub := stream.NewPublisher("video2")
	srv := newStreamServer(t, pub)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/video2", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	waitFor(t, "subscriber", func() bool { return pub.Stats().Subscribers == 1 })

	cancel()
	resp.Body.Close()

	// 断开的客户端在下一次写入或 ctx 取消时被移除
	waitFor(t, "unsubscribe", func() bool {
		pub.Publish(model.NewChunk("video2", 1, []byte{0xff, 0xd8}))
		return pub.Stats().Subscribers == 0
	})
}

func TestStreamClosedEndpoint(t *testing.T) {
	pub := stream.NewPublisher("video1")
	pub.Close()
	srv := newStreamServer(t, pub)

	resp, err := http.Get(srv.URL + "/video1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("closed endpoint sent %d bytes", len(body))
	}
}

func TestStreamUnknownCamera(t *testing.T) {
	srv := newStreamServer(t, stream.NewPublisher("video1"))

	resp, err := http.Get(srv.URL + "/video3")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamIndependentEndpoints(t *testing.T) {
	one := stream.NewPublisher("video1")
	two := stream.NewPublisher("video2")
	srv := newStreamServer(t, one, two)

	resp, err := http.Get(srv.URL + "/video2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	waitFor(t, "subscriber", func() bool { return two.Stats().Subscribers == 1 })

	one.Publish(model.NewChunk("video1", 1, testJPEG(t, 10)))
	one.Close()

	c := model.NewChunk("video2", 1, testJPEG(t, 90))
	two.Publish(c)
	want := stream.Frame(c)
	got := make([]byte, len(want))
	if _, err := io.ReadFull(resp.Body, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("video2 received a chunk from another camera")
	}
}
