package util

// field keys used when building structured loggers throughout the service.
const (
	ServiceKey   = "service"
	PackageKey   = "package"
	ComponentKey = "component"

	ServiceVIPS = "vips-patchbay"

	PackageMain       = "main"
	PackageEvaluator  = "evaluator"
	PackageExecutor   = "executor"
	PackageCache      = "cache"
	PackageResolver   = "resolver"
	PackageGraph      = "graph"
	PackageThumbnail  = "thumbnail"
	PackageInvalidate = "invalidate"
	PackageImageStore = "imagestore"
	PackageHttpapi    = "httpapi"
	PackageTranscode  = "transcode"
	PackageStoreDb    = "storedb"

	ComponentMain             = "main"
	ComponentEvaluator        = "pipeline evaluator"
	ComponentExecutor         = "block executor"
	ComponentCacheIndex       = "cache index"
	ComponentPathResolver     = "path resolver"
	ComponentBlockRepository  = "block repository"
	ComponentThumbnailService = "thumbnail service"
	ComponentInvalidation     = "invalidation controller"
	ComponentImageStore       = "image store"
	ComponentUploadHandler    = "upload handler"
	ComponentRunHandler       = "run handler"
	ComponentPreviewHandler   = "preview handler"
	ComponentBlockHandler     = "block image handler"
	ComponentProjectHandler   = "project handler"
	ComponentToggleHandler    = "toggle enabled handler"
)
