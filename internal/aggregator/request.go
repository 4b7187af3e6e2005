package aggregator

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/gauthierbraillon/flaneur/internal/location"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// RunOptions is the wire form of one provider's run options, as sent in the
// aggregate request ({"token": ..., "maxItems": ..., "onlyWithLocation": ...}).
type RunOptions struct {
	Token            string `json:"token"`
	MaxID            string `json:"maxID" validate:"excluded_with=Cursor After"`
	Cursor           string `json:"cursor" validate:"excluded_with=After"`
	After            string `json:"after"`
	BatchSize        int    `json:"batchSize" validate:"gte=0,lte=500"`
	MaxItems         int    `json:"maxItems" validate:"gte=0"`
	OnlyWithLocation *bool  `json:"onlyWithLocation" validate:"required"`
	WithCover        bool   `json:"withCover"`
}

// Options validates o and converts it to run options.
func (o RunOptions) Options() (location.Options, error) {
	if err := getValidator().Struct(o); err != nil {
		return location.Options{}, validationError(err)
	}

	cursor := o.Cursor
	switch {
	case o.MaxID != "":
		cursor = o.MaxID
	case o.After != "":
		cursor = o.After
	}

	return location.Options{
		Token:            o.Token,
		Cursor:           cursor,
		PageSize:         o.BatchSize,
		MaxItems:         o.MaxItems,
		OnlyWithLocation: *o.OnlyWithLocation,
		WithCover:        o.WithCover,
	}, nil
}

// ParseRequest reads one JSON options object per registered provider from
// values. Unregistered keys are ignored, and so are providers whose value is
// empty, null or false. A provider whose options cannot be parsed is recorded
// in Request.Invalid and reported as its error marker.
func (a *Aggregator) ParseRequest(values url.Values) Request {
	req := NewRequest()
	for _, name := range a.order {
		raw, present := values[name]
		if !present || len(raw) == 0 || notRequested(raw[0]) {
			continue
		}

		var wire RunOptions
		if err := json.Unmarshal([]byte(raw[0]), &wire); err != nil {
			req.Invalid[name] = location.InvalidError(name, "options must be a JSON object", err)
			continue
		}
		opts, err := wire.Options()
		if err != nil {
			req.Invalid[name] = location.InvalidError(name, err.Error(), nil)
			continue
		}
		req.Runs[name] = opts
	}
	return req
}

func notRequested(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "", "null", "false":
		return true
	}
	return false
}

// QueryOptions reads single-provider run options from URL query parameters.
// cursorParam names the cursor parameter ("maxID" for Instagram, "after" for
// Facebook). onlyWithLocation defaults to false here.
func QueryOptions(q url.Values, cursorParam string) (location.Options, error) {
	wire := RunOptions{Token: q.Get("token")}

	switch cursorParam {
	case "maxID":
		wire.MaxID = q.Get(cursorParam)
	case "after":
		wire.After = q.Get(cursorParam)
	default:
		wire.Cursor = q.Get(cursorParam)
	}

	var err error
	if wire.BatchSize, err = intParam(q, "batchSize"); err != nil {
		return location.Options{}, err
	}
	if wire.MaxItems, err = intParam(q, "maxItems"); err != nil {
		return location.Options{}, err
	}
	onlyWithLocation, err := boolParam(q, "onlyWithLocation")
	if err != nil {
		return location.Options{}, err
	}
	wire.OnlyWithLocation = &onlyWithLocation
	if wire.WithCover, err = boolParam(q, "withCover"); err != nil {
		return location.Options{}, err
	}

	opts, err := wire.Options()
	if err != nil {
		return location.Options{}, location.InvalidError("", err.Error(), nil)
	}
	return opts, nil
}

func intParam(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, location.InvalidError("", fmt.Sprintf("%s must be an integer", key), err)
	}
	return n, nil
}

func boolParam(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, location.InvalidError("", fmt.Sprintf("%s must be true or false", key), err)
	}
	return b, nil
}

// validationError turns validator errors into a single readable error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", fe.Field()))
		case "gte":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "lte":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
		case "excluded_with":
			messages = append(messages, fmt.Sprintf("%s cannot be combined with %s", fe.Field(), wireNames(fe.Param())))
		default:
			messages = append(messages, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}

// wireNames maps the space separated RunOptions field names of a validator
// param to their JSON names.
func wireNames(param string) string {
	t := reflect.TypeOf(RunOptions{})
	fields := strings.Fields(param)
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		name := field
		if f, ok := t.FieldByName(field); ok {
			if tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]; tag != "" && tag != "-" {
				name = tag
			}
		}
		names = append(names, name)
	}
	return strings.Join(names, " or ")
}
