package viz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// wsQueue is how many frames a websocket client may fall behind before
// frames are dropped for it.
const wsQueue = 64

type ImageContainer struct {
	name string
	data []byte
}

type Producer interface {
	Name() string
	GetImage() *ImageContainer
	AddPlotOption(opt PlotOptions)
}

// Server renders registered plots as PNGs on demand and streams binary
// frames to websocket clients. Plots are grouped into buckets; a bucket is
// only rendered while someone is viewing it.
type Server struct {
	images          map[string]map[string]*ImageContainer
	mu              sync.RWMutex
	srv             *http.Server
	producerBuckets map[string]map[string]Producer
	updateInterval  time.Duration
	enabled         bool
	lastViewed      map[string]time.Time
	logger          zerolog.Logger

	upgrader  websocket.Upgrader
	wsMu      sync.Mutex
	wsClients map[*websocket.Conn]chan []byte
	wsDropped int64
}

type ServerOption func(s *Server)

func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(port int, updateInterval time.Duration, opts ...ServerOption) *Server {
	s := &Server{
		images:          make(map[string]map[string]*ImageContainer),
		producerBuckets: make(map[string]map[string]Producer),
		lastViewed:      make(map[string]time.Time),
		srv:             &http.Server{Addr: fmt.Sprintf(":%d", port)},
		updateInterval:  updateInterval,
		enabled:         true,
		logger:          log.Logger,
		wsClients:       make(map[*websocket.Conn]chan []byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv.Handler = s.routes()
	return s
}

func (s *Server) Enable(enable bool) {
	s.mu.Lock()
	s.enabled = enable
	s.mu.Unlock()
}

func (s *Server) Register(key string, p Producer) {
	s.mu.Lock()
	bucket, ok := s.producerBuckets[key]
	if !ok {
		bucket = make(map[string]Producer)
		s.producerBuckets[key] = bucket
	}
	bucket[p.Name()] = p
	s.mu.Unlock()
}

// Broadcast queues p for every websocket client. Clients that are too far
// behind miss the frame.
func (s *Server) Broadcast(p []byte) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for _, ch := range s.wsClients {
		select {
		case ch <- p:
		default:
			s.wsDropped++
		}
	}
}

// WebsocketClients is the number of connected websocket clients.
func (s *Server) WebsocketClients() int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	return len(s.wsClients)
}

func (s *Server) Stop(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.wsMu.Lock()
	for c, ch := range s.wsClients {
		close(ch)
		delete(s.wsClients, c)
	}
	s.wsMu.Unlock()
	return err
}

// Handler exposes the routes for tests and for mounting elsewhere.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until ctx is done or Stop is called.
func (s *Server) Run(ctx context.Context) error {
	go s.render(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.srv.Addr).Msg("viz server listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// render refreshes the images of every recently viewed bucket.
func (s *Server) render(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.updateInterval):
		}

		s.mu.RLock()
		enabled := s.enabled
		var due []map[string]Producer
		var names []string
		for name, bucket := range s.producerBuckets {
			if time.Since(s.lastViewed[name]) < time.Second {
				due = append(due, bucket)
				names = append(names, name)
			}
		}
		s.mu.RUnlock()
		if !enabled {
			continue
		}

		var wg sync.WaitGroup
		for i, bucket := range due {
			for _, producer := range bucket {
				wg.Add(1)
				go func(bucket string, p Producer) {
					defer wg.Done()
					img := p.GetImage()
					if img == nil {
						return
					}
					s.mu.Lock()
					mb, ok := s.images[bucket]
					if !ok {
						mb = make(map[string]*ImageContainer)
						s.images[bucket] = mb
					}
					mb[img.name] = img
					s.mu.Unlock()
				}(names[i], producer)
			}
		}
		wg.Wait()
	}
}

func (s *Server) routes() http.Handler {
	handler := httprouter.New()
	handler.GET("/", s.index)
	handler.GET("/view/:bucket", s.view)
	handler.GET("/img/:bucket/:img", s.image)
	handler.GET("/ws", s.websocket)
	return handler
}

func (s *Server) bucketNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.producerBuckets))
	for key := range s.producerBuckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	keys := s.bucketNames()
	if len(keys) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Location", "/view/"+url.PathEscape(keys[0]))
	w.WriteHeader(http.StatusFound)
}

func (s *Server) view(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	bucket := params.ByName("bucket")

	s.mu.Lock()
	items, ok := s.producerBuckets[bucket]
	var plots []string
	for key := range items {
		plots = append(plots, key)
	}
	if ok {
		s.lastViewed[bucket] = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sort.Strings(plots)

	w.Header().Add("Content-Type", "text/html")
	fmt.Fprintf(w, `<html><head><title>Rig Viz</title></head>
<script type="text/javascript">
	var toggleRefresh = true;
	function toggleOn() { toggleRefresh = !toggleRefresh; }
	function changeBucket() {
		window.location.href = '/view/' + document.getElementById('bucketSelector').value;
	}
	window.onload = function() {
		for (var i = 0; i < %d; i++) {
			setInterval(function(image) {
				if (toggleRefresh) {
					image.src = image.src.split("?")[0] + "?" + new Date().getTime();
				}
			}, %d, document.getElementById('graph-' + i));
		}
	}
</script>
<body style='background-color: black'>`, len(plots), s.updateInterval.Milliseconds())

	fmt.Fprint(w, `<select id="bucketSelector" onchange="changeBucket()">`)
	for _, name := range s.bucketNames() {
		selected := ""
		if name == bucket {
			selected = " selected"
		}
		fmt.Fprintf(w, `<option value="%s"%s>%s</option>`, name, selected, name)
	}
	fmt.Fprint(w, `</select><button onclick="toggleOn()">Refresh?</button>`)

	fmt.Fprint(w, `<div style="display: flex; flex-direction: row; flex-wrap: wrap">`)
	for idx, key := range plots {
		fmt.Fprintf(w, `<div><img id="graph-%d" src="/img/%s/%s?%d" /></div>`,
			idx, url.PathEscape(bucket), url.PathEscape(key), time.Now().UnixMicro())
	}
	fmt.Fprint(w, `</div></body></html>`)
}

func (s *Server) image(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	bucketName := params.ByName("bucket")
	imgName := params.ByName("img")

	s.mu.Lock()
	s.lastViewed[bucketName] = time.Now()
	img, ok := s.images[bucketName][imgName]
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Add("Content-Type", "image/png")
	w.Write(img.data)
}

// websocket streams every broadcast frame to the client as a binary
// message. Anything the client sends is ignored.
func (s *Server) websocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	ch := make(chan []byte, wsQueue)
	s.wsMu.Lock()
	s.wsClients[conn] = ch
	s.wsMu.Unlock()
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropWebsocket(conn)
				return
			}
		}
	}()

	for frame := range ch {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			s.dropWebsocket(conn)
			break
		}
	}
	conn.Close()
}

func (s *Server) dropWebsocket(conn *websocket.Conn) {
	s.wsMu.Lock()
	if ch, ok := s.wsClients[conn]; ok {
		close(ch)
		delete(s.wsClients, conn)
	}
	s.wsMu.Unlock()
}
