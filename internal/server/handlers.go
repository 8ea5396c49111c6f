package server

import (
	"time"

	"animelight/internal/feed"
	"animelight/internal/models"
	"animelight/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// postView is a post as a feed card renders it.
type postView struct {
	models.Post
	PlainBody string `json:"plain_body"`
	Age       string `json:"age"`
}

// feedView is the session state with render-ready posts.
type feedView struct {
	feed.SessionState
	Posts []postView `json:"posts"`
}

func (s *Server) feedState() feedView {
	state := s.session.State()
	now := time.Now()
	posts := make([]postView, len(state.Posts))
	for i, p := range state.Posts {
		posts[i] = postView{Post: p, PlainBody: p.PlainBody(), Age: p.RelativeAge(now)}
	}
	return feedView{SessionState: state, Posts: posts}
}

// GetFeed returns the posts, pagination state and new-posts counter.
func (s *Server) GetFeed(c *fiber.Ctx) error {
	return c.JSON(s.feedState())
}

// RefreshFeed reloads page 0 and resets the new-posts counter.
func (s *Server) RefreshFeed(c *fiber.Ctx) error {
	if err := s.session.Refresh(c.UserContext()); err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(s.feedState())
}

// LoadMore appends the next page. A dropped call still returns 200 with started=false.
func (s *Server) LoadMore(c *fiber.Ctx) error {
	started, err := s.session.LoadMore(c.UserContext())
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(fiber.Map{
		"started": started,
		"state":   s.feedState(),
	})
}

// MountFeed is called when the feed screen attaches and returns the offset to scroll to.
func (s *Server) MountFeed(c *fiber.Ctx) error {
	res, err := s.session.Mount(c.UserContext())
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) UnmountFeed(c *fiber.Ctx) error {
	var req validation.UnmountRequest
	if err := c.BodyParser(&req); err != nil {
		return respondWithError(c, models.NewValidationError("Invalid request body"))
	}
	if err := validation.Struct(req); err != nil {
		return respondWithError(c, err)
	}
	if err := s.session.Unmount(c.UserContext(), req.Offset); err != nil {
		return respondWithError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// postID reads and validates the :id route parameter. The value is copied out of the
// request buffer because it outlives the request in the store and in background writes.
func postID(c *fiber.Ctx) (string, error) {
	id := utils.CopyString(c.Params("id"))
	if err := validation.ValidatePostID(id); err != nil {
		return "", models.NewValidationError("Invalid post ID")
	}
	return id, nil
}

// ToggleLike applies the like change locally and answers 202 while the write runs.
// With ?wait=true it answers once the write settled, with the rolled-back post on failure.
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondWithError(c, err)
	}
	var req validation.LikeRequest
	if err := c.BodyParser(&req); err != nil {
		return respondWithError(c, models.NewValidationError("Invalid request body"))
	}
	if err := validation.Struct(req); err != nil {
		return respondWithError(c, err)
	}

	pending, err := s.session.ToggleLike(c.UserContext(), id, *req.CurrentlyLiked)
	if err != nil {
		return respondWithError(c, err)
	}

	if !c.QueryBool("wait") {
		post, _ := s.session.Store().Get(id)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"post":    post,
			"pending": true,
		})
	}

	if err := pending.Wait(c.UserContext()); err != nil {
		return respondWithError(c, models.NewMutationError("update like", err))
	}
	post, _ := s.session.Store().Get(id)
	return c.JSON(fiber.Map{
		"post":    post,
		"pending": false,
	})
}

// AddComment stores a comment and returns it with the updated post.
func (s *Server) AddComment(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondWithError(c, err)
	}
	var req validation.CommentRequest
	if err := c.BodyParser(&req); err != nil {
		return respondWithError(c, models.NewValidationError("Invalid request body"))
	}
	if err := validation.Struct(req); err != nil {
		return respondWithError(c, err)
	}

	comment, err := s.session.AddComment(c.UserContext(), id, req.Body)
	if err != nil {
		return respondWithError(c, err)
	}
	resp := fiber.Map{"comment": comment}
	if post, ok := s.session.Store().Get(id); ok {
		resp["post"] = post
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ConfirmComment counts a comment that was stored elsewhere in the app.
func (s *Server) ConfirmComment(c *fiber.Ctx) error {
	id, err := postID(c)
	if err != nil {
		return respondWithError(c, err)
	}
	if !s.session.ConfirmComment(id) {
		return respondWithError(c, models.NewNotFoundError("Post", id))
	}
	post, _ := s.session.Store().Get(id)
	return c.JSON(post)
}

// GetAlerts drains the pending user-visible errors.
func (s *Server) GetAlerts(c *fiber.Ctx) error {
	return c.JSON(s.alerts.Drain())
}

// GetFeatureFlags returns configured flags and their value for the session viewer.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{"raw": fiber.Map{}, "enabled": fiber.Map{}})
	}
	return c.JSON(fiber.Map{
		"raw":     s.featureFlags.Raw(),
		"enabled": s.featureFlags.Snapshot(s.session.ViewerID()),
	})
}
