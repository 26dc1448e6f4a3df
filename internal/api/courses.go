package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/payload"
)

const PathCourses = "/courses"

func (c *Client) CreateCourse(ctx context.Context, body *payload.Course) (*model.Course, error) {
	create := *body
	create.CourseID = nil
	return c.sendCourse(ctx, http.MethodPost, PathCourses, &create)
}

func (c *Client) UpdateCourse(ctx context.Context, slug string, body *payload.Course) (*model.Course, error) {
	return c.sendCourse(ctx, http.MethodPut, PathCourses+"/"+url.PathEscape(slug), body)
}

func (c *Client) sendCourse(ctx context.Context, method, path string, body *payload.Course) (*model.Course, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, method, path, body, &raw); err != nil {
		return nil, err
	}
	return decodeCourse(raw, method, path)
}

func (c *Client) ListCourses(ctx context.Context) ([]model.Course, error) {
	var raw []json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, PathCourses, nil, &raw); err != nil {
		return nil, err
	}

	courses := make([]model.Course, 0, len(raw))
	for _, r := range raw {
		course, err := decodeCourse(r, http.MethodGet, PathCourses)
		if err != nil {
			return nil, err
		}
		courses = append(courses, *course)
	}
	return courses, nil
}

func decodeCourse(raw json.RawMessage, method, path string) (*model.Course, error) {
	course := &model.Course{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, course); err != nil {
			return nil, apperr.Wrap(err, apperr.KindServer, method+" "+path+": malformed course")
		}
	}
	course.Raw = raw
	return course, nil
}
