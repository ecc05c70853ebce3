package farm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"boxfarm/internal/logs"
)

var (
	// ErrUnreachable — хост фермы недоступен либо ответил кодом ошибки.
	ErrUnreachable = errors.New("farm host unreachable")
	// ErrBadPayload — ответ получен, но формат не распознан.
	ErrBadPayload = errors.New("farm payload malformed")
)

// Client ходит в API фермы устройств. Источник считается ненадёжным:
// медленные ответы ограничиваются таймаутами, детальная информация
// по устройствам добирается best-effort.
type Client struct {
	baseURL      string
	probeTimeout time.Duration
	fetchTimeout time.Duration
	workers      int
	http         *http.Client
}

type Options struct {
	BaseURL      string
	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	Workers      int
}

func NewClient(opts Options) *Client {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		probeTimeout: opts.ProbeTimeout,
		fetchTimeout: opts.FetchTimeout,
		workers:      opts.Workers,
		http:         &http.Client{},
	}
}

// Probe проверяет доступность базового URL. Ошибка не фатальна для
// вызывающего — только предупреждение в лог.
func (c *Client) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logs.Logger.Warnf("farm base URL %s probe failed: %v", c.baseURL, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		logs.Logger.Warnf("farm base URL %s looks unreachable, status %d", c.baseURL, resp.StatusCode)
	}
}

// List возвращает краткий список устройств хоста ip (имя, статус, индекс).
func (c *Client) List(ctx context.Context, ip string) ([]Descriptor, error) {
	raws, err := c.listRaw(ctx, ip)
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, 0, len(raws))
	for _, raw := range raws {
		out = append(out, parseDescriptor(raw, ip))
	}
	return out, nil
}

// Fetch возвращает полный список устройств хоста ip: краткий список,
// дополненный деталями из /get_api_info (порты, подсказки статуса).
// Провал запроса деталей отдельного устройства не фатален.
func (c *Client) Fetch(ctx context.Context, ip string) ([]Descriptor, error) {
	raws, err := c.listRaw(ctx, ip)
	if err != nil {
		return nil, err
	}

	// Детали добираем пулом воркеров: один зависший запрос не должен
	// тормозить весь проход. Порядок устройств сохраняется по индексу.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range raws {
		i := i
		g.Go(func() error {
			raw := raws[i]
			name := primaryName(raw)
			if name == "" {
				return nil
			}
			devIP := ip
			if s, ok := raw["ip"].(string); ok && s != "" {
				devIP = s
			}
			detail, err := c.detailRaw(gctx, devIP, name)
			if err != nil {
				logs.Logger.Warnf("detail fetch for %q failed, using summary only: %v", name, err)
				return nil
			}
			// детали перекрывают краткие поля
			for k, v := range detail {
				raw[k] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Descriptor, 0, len(raws))
	for _, raw := range raws {
		out = append(out, parseDescriptor(raw, ip))
	}
	logs.Logger.Infof("fetched %d devices from farm host %s", len(out), ip)
	return out, nil
}

func (c *Client) listRaw(ctx context.Context, ip string) ([]map[string]any, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/dc_api/v1/list/%s", c.baseURL, url.PathEscape(ip)))
	if err != nil {
		return nil, err
	}

	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("%w: device list is not valid JSON: %v", ErrBadPayload, err)
	}

	// Ответ бывает трёх форм: {"msg": [...]}, {"data": [...]} либо сразу список.
	var items []any
	switch t := root.(type) {
	case map[string]any:
		if l, ok := t["msg"].([]any); ok {
			items = l
		} else if l, ok := t["data"].([]any); ok {
			items = l
		} else {
			return nil, fmt.Errorf("%w: device list has unexpected shape", ErrBadPayload)
		}
	case []any:
		items = t
	default:
		return nil, fmt.Errorf("%w: device list has unexpected shape", ErrBadPayload)
	}

	raws := make([]map[string]any, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			logs.Logger.Warnf("skipping non-object item in device list for %s: %v", ip, it)
			continue
		}
		raws = append(raws, m)
	}
	return raws, nil
}

func (c *Client) detailRaw(ctx context.Context, deviceIP, name string) (map[string]any, error) {
	u := fmt.Sprintf("%s/get_api_info/%s/%s", c.baseURL, url.PathEscape(deviceIP), url.PathEscape(name))
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Code int            `json:"code"`
		Msg  map[string]any `json:"msg"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if resp.Code != 200 || resp.Msg == nil {
		return nil, fmt.Errorf("%w: detail response code %d", ErrBadPayload, resp.Code)
	}
	return resp.Msg, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrUnreachable, u, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return body, nil
}

func primaryName(raw map[string]any) string {
	for _, k := range nameKeys {
		if s := stringField(raw[k]); s != "" {
			return s
		}
	}
	return ""
}
