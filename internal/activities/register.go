package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.UpdateBookStatusActivity)
	w.RegisterActivity(a.PrepareWorkspaceActivity)
	w.RegisterActivity(a.ListChaptersActivity)
	w.RegisterActivity(a.ExecuteChapterActivity)
	w.RegisterActivity(a.RenderSlidesActivity)
	w.RegisterActivity(a.RenderFlowDocActivity)
	w.RegisterActivity(a.WriteManifestActivity)
	w.RegisterActivity(a.PackageBookActivity)
}
