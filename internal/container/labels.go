package container

// Compose ownership labels, written by docker compose on every container it
// manages. Recreated managed containers must carry them again or the next
// run would misclassify the target as standalone.
const (
	LabelComposeProject     = "com.docker.compose.project"
	LabelComposeService     = "com.docker.compose.service"
	LabelComposeConfigFiles = "com.docker.compose.project.config_files"
	LabelComposeWorkingDir  = "com.docker.compose.project.working_dir"
)
